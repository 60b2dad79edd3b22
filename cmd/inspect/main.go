package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"skiff/pkg/logger"
	"skiff/pkg/store"
)

// spaces maps the short names accepted by -space to their key prefixes.
var spaces = map[string]string{
	"objects":  "o\x00",
	"uploads":  "u\x00",
	"parts":    "p\x00",
	"logs":     "l\x00",
	"postings": "t\x00",
	"tenants":  "tn\x00",
}

var spaceOrder = []string{"objects", "uploads", "parts", "logs", "postings", "tenants"}

func main() {
	var (
		dbPath = flag.String("db", "./.database", "Pebble DB path to open")
		space  = flag.String("space", "", "key space to dump (objects|uploads|parts|logs|postings|tenants); empty dumps all")
		values = flag.Bool("values", false, "print values alongside keys")
		limit  = flag.Int("limit", 0, "stop after N keys per space (0 = no limit)")
	)
	flag.Parse()

	logger.InitWithLevel("error")
	if err := store.Open(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to open pebble at %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	names := spaceOrder
	if *space != "" {
		if _, ok := spaces[*space]; !ok {
			fmt.Fprintf(os.Stderr, "unknown space %q\n", *space)
			os.Exit(2)
		}
		names = []string{*space}
	}

	for _, name := range names {
		prefix := spaces[name]
		n := 0
		err := store.PrefixScan([]byte(prefix), func(key, value []byte) bool {
			fmt.Printf("%s\t%s\n", name, printable(key))
			if *values {
				fmt.Printf("\t%d bytes: %s\n", len(value), preview(value))
			}
			n++
			return *limit == 0 || n < *limit
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "scan %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("# %s: %d keys\n", name, n)
	}
}

// printable renders NUL separators as "/" so composite keys read as paths.
func printable(key []byte) string {
	return strings.ReplaceAll(string(key), "\x00", "/")
}

func preview(v []byte) string {
	const max = 120
	s := string(v)
	if len(s) > max {
		s = s[:max] + "..."
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			out = append(out, '.')
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}
