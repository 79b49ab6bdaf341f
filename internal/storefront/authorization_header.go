package storefront

import (
	"net/http"
)

type AuthEngine interface {
	GetApiKey() string
	SetApiKey(request *http.Request)
}

// BasicAuth - пара consumer key / consumer secret REST API витрины.
type BasicAuth struct {
	consumerKey    string
	consumerSecret string
}

func (b *BasicAuth) GetApiKey() string {
	return b.consumerKey
}

func (b *BasicAuth) SetApiKey(request *http.Request) {
	request.SetBasicAuth(b.consumerKey, b.consumerSecret)
}

func NewBasicAuth(consumerKey, consumerSecret string) *BasicAuth {
	if consumerKey == "" {
		return nil
	}
	return &BasicAuth{consumerKey: consumerKey, consumerSecret: consumerSecret}
}
