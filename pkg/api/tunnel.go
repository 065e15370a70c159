package api

// Tunnel frame types.
const (
	TunnelEnv      = "env"
	TunnelRequest  = "request"
	TunnelResponse = "response"
)

// Environment keys pushed to the media backend on connect.
const (
	EnvPublicIp    = "PUBLIC_IP"
	EnvBearerToken = "BEARER_TOKEN"
)

type (
	// EnvFrame is sent once per connection, edge -> media.
	EnvFrame struct {
		Type  string            `json:"type"`
		Items map[string]string `json:"items"`
	}
	// RequestFrame carries a forwarded HTTP request, edge -> media.
	RequestFrame struct {
		Type    string            `json:"type"`
		Id      string            `json:"id"`
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers"`
		Url     string            `json:"url"`
		Body    *string           `json:"body"`
	}
	// ResponseFrame carries the result of a forwarded request, media -> edge.
	ResponseFrame struct {
		Type    string            `json:"type"`
		Id      string            `json:"id"`
		Status  int               `json:"status"`
		Headers map[string]string `json:"headers"`
		Body    *string           `json:"body"`
	}
)

func NewEnvFrame(items map[string]string) EnvFrame {
	if items == nil {
		items = map[string]string{}
	}
	return EnvFrame{Type: TunnelEnv, Items: items}
}

// BodyOf returns a frame body pointer, nil for empty data.
func BodyOf(data []byte) *string {
	if len(data) == 0 {
		return nil
	}
	s := string(data)
	return &s
}

// BodyBytes is the reverse of BodyOf.
func BodyBytes(s *string) []byte {
	if s == nil {
		return nil
	}
	return []byte(*s)
}
