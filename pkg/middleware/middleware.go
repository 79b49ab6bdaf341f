package middleware

import "context"

// RequestFunc - исходящий запрос клиента к внешнему API.
type RequestFunc func(ctx context.Context, method, endpoint string, requestBody, response interface{}) error

type Middleware func(next RequestFunc) RequestFunc

// Wrap оборачивает запрос клиента; первый middleware выполняется первым.
func Wrap(f RequestFunc, mws ...Middleware) RequestFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		f = mws[i](f)
	}
	return f
}
