package client

import (
	"net/http"
	"time"

	"m3u-server/work/config"
)

// HeaderSettingClient wraps http.Client to automatically apply per-source
// request headers (User-Agent, Origin, Referer) configured for each playlist
// source. One shared client serves all sources; headers are chosen per
// request from the source being fetched.
type HeaderSettingClient struct {
	Client *http.Client
}

// NewHeaderSettingClient builds the shared upstream HTTP client. The overall
// client timeout stays unset; per-source deadlines are enforced through the
// request context by the fetcher.
func NewHeaderSettingClient() *HeaderSettingClient {
	return &HeaderSettingClient{
		Client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

// Do applies the source's configured headers to the request and executes it.
func (hsc *HeaderSettingClient) Do(req *http.Request, src *config.SourceConfig) (*http.Response, error) {
	hsc.setHeaders(req, src)
	return hsc.Client.Do(req)
}

// setHeaders applies the per-source header set to an outbound request.
func (hsc *HeaderSettingClient) setHeaders(req *http.Request, src *config.SourceConfig) {
	req.Header.Set("User-Agent", src.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "gzip")

	if src.ReqOrigin != "" {
		req.Header.Set("Origin", src.ReqOrigin)
	}
	if src.ReqReferrer != "" {
		req.Header.Set("Referer", src.ReqReferrer)
	}
}
