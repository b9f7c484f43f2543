package httpdto

// Response is the envelope of every local daemon reply. OK mirrors the
// HTTP status for UI clients that only inspect the body; Code is a
// machine-readable failure tag from the error taxonomy mapping.
type Response[T any] struct {
	OK    bool   `json:"ok"`
	Data  T      `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{OK: true, Data: data}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{Error: err, Code: code}
}
