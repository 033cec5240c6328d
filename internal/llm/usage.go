package llm

import "context"

// Usage accumulates token counts for every completion issued under one
// context tree. Calls within a single task are strictly sequential, so
// plain fields are safe.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Calls        int
}

func (u *Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

type usageKey struct{}

// WithUsage attaches a fresh usage accumulator to the context. Every
// Complete call made with the returned context adds its token counts.
func WithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// Record adds a completion's token counts to the context accumulator, if
// one is attached. Every Completer implementation calls it so accounting
// survives wrapping and test doubles.
func Record(ctx context.Context, resp *Response) {
	u, ok := ctx.Value(usageKey{}).(*Usage)
	if !ok {
		return
	}
	u.InputTokens += resp.InputTokens
	u.OutputTokens += resp.OutputTokens
	u.Calls++
}
