package napcat

// The gateway returns its payloads in a handful of historical shapes. Each
// lookup runs an explicit ordered list of extraction strategies against the
// decoded JSON value; the first hit wins.

type credentialStrategy func(map[string]any) (string, bool)

var credentialStrategies = []credentialStrategy{
	// {"code":0,"data":"Base64Cred..."}
	func(m map[string]any) (string, bool) {
		s, ok := m["data"].(string)
		return s, ok && s != ""
	},
	// {"data":{"credential":"..."}} and casing variants
	func(m map[string]any) (string, bool) {
		inner, ok := m["data"].(map[string]any)
		if !ok {
			return "", false
		}
		return stringKey(inner, "credential", "Credential", "CREDENTIAL")
	},
	// top-level {"credential":"..."} and casing variants
	func(m map[string]any) (string, bool) {
		return stringKey(m, "credential", "Credential", "CREDENTIAL")
	},
}

// extractCredential pulls the opaque session credential out of a login
// response, trying each known shape in order.
func extractCredential(body map[string]any) (string, bool) {
	for _, try := range credentialStrategies {
		if v, ok := try(body); ok {
			return v, true
		}
	}
	return "", false
}

// extractOnline pulls the boolean online flag out of a status response:
// data.online first, then top-level online.
func extractOnline(body map[string]any) (bool, bool) {
	if inner, ok := body["data"].(map[string]any); ok {
		if v, ok := inner["online"].(bool); ok {
			return v, true
		}
	}
	v, ok := body["online"].(bool)
	return v, ok
}

func stringKey(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
