package main

import (
    "flag"
    "fmt"
    "time"

    "github.com/valyala/fasthttp"
)

// Minimal standalone liveness responder. Useful for load tests that need a
// health endpoint without the full gateway behind it.
func main() {
    addr := flag.String("addr", ":8081", "listen address for the fasthttp health responder")
    ver := flag.String("version", "dev", "version string to return")
    flag.Parse()

    h := func(ctx *fasthttp.RequestCtx) {
        switch string(ctx.Path()) {
        case "/health", "/healthz", "/readyz":
            ctx.Response.Header.Set("Content-Type", "application/json")
            ctx.SetStatusCode(fasthttp.StatusOK)
            _, _ = ctx.WriteString(fmt.Sprintf("{\"status\":\"ok\",\"version\":\"%s\"}", *ver))
        default:
            ctx.SetStatusCode(fasthttp.StatusNotFound)
        }
    }

    fmt.Printf("fasthttp health responder listening on %s\n", *addr)
    srv := &fasthttp.Server{
        Handler:            h,
        Name:               "skiff-health",
        ReadTimeout:        5 * time.Second,
        WriteTimeout:       5 * time.Second,
        MaxRequestBodySize: 1 << 20,
    }
    if err := srv.ListenAndServe(*addr); err != nil {
        fmt.Printf("fasthttp server exit: %v\n", err)
    }
}
