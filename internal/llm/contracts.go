package llm

import "context"

// Request is one model invocation.
type Request struct {
	Provider    string
	Model       string
	Temperature float32
	Prompt      string
	// JSONObject asks the backend to constrain output to a JSON object when it can.
	JSONObject bool
}

// Invoker is the model capability the pipeline depends on. Implementations return
// the raw completion text, or an error wrapping common.ErrTransport.
type Invoker interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req Request) (string, error)

func (f InvokerFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
