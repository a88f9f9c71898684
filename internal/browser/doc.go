// Package browser manages one shared headless Chrome process and hands out
// scoped, concurrency-limited, isolated browsing contexts over chromedp.
//
// Every context is obtained through Pool.Lease, which closes it and returns
// its permit on all exit paths. CloseAllContexts sweeps open contexts without
// stopping the process; Recycle and Shutdown tear the process down.
package browser
