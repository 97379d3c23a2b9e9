package ctxutil

import "context"

type requestDataKey struct{}

// RequestData is what the HTTP layer learns about a request before the
// handler runs.
type RequestData struct {
	RequestID string
	CompanyID int64
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(Default(ctx), requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	rd, ok := ctx.Value(requestDataKey{}).(*RequestData)
	if !ok {
		return nil
	}
	return rd
}

// CompanyID is the tenant of the request, 0 when none was given.
func CompanyID(ctx context.Context) int64 {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.CompanyID
	}
	return 0
}
