package hostfuncs

// Wire types are the JSON payloads marshaled across the packed-pointer ABI,
// following the teacher's HTTPRequestWire/HTTPResponseWire convention
// generalized to Plaid's own capability families.

// StorageRequestWire is the request body for storage:: capabilities.
type StorageRequestWire struct {
	Key    string `json:"key"`
	Value  []byte `json:"value,omitempty"`
	Mode   string `json:"mode,omitempty"`   // "all" or "prefix:P" for list_keys
	DB     string `json:"db,omitempty"`     // shared DB name, empty for rule-scoped
}

// StorageResponseWire is the response body for storage:: capabilities.
type StorageResponseWire struct {
	Value []byte   `json:"value,omitempty"`
	Found bool     `json:"found"`
	Keys  []string `json:"keys,omitempty"`
}

// CacheRequestWire is the request body for cache:: capabilities.
type CacheRequestWire struct {
	Cache string `json:"cache"`
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
	TTL   int    `json:"ttl_seconds,omitempty"`
}

// CacheResponseWire is the response body for cache:: capabilities.
type CacheResponseWire struct {
	Value      []byte `json:"value,omitempty"`
	Found      bool   `json:"found"`
	Evicted    bool   `json:"evicted,omitempty"`
	EvictedKey string `json:"evicted_key,omitempty"`
}

// NetworkRequestWire is the request body for network::make_named_request.
type NetworkRequestWire struct {
	Name            string            `json:"name"`
	URLVars         map[string]string `json:"url_vars,omitempty"`
	BodyVars        map[string]string `json:"body_vars,omitempty"`
	HeadersOverride map[string]string `json:"headers_override,omitempty"`
}

// NetworkResponseWire is the response body for network::make_named_request.
type NetworkResponseWire struct {
	Status int    `json:"status,omitempty"`
	Body   []byte `json:"body,omitempty"`
}

// LogBackRequestWire is the request body for log_back.
type LogBackRequestWire struct {
	LogType string `json:"log_type"`
	Payload []byte `json:"payload"`
	Delay   int    `json:"delay_seconds,omitempty"`
}
