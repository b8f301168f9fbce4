package codec

import "github.com/invopop/jsonschema"

// Schemas 按消息类型反射出 JSON schema
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	out := make(map[string]*jsonschema.Schema)
	for _, t := range []string{TypeState, TypeInput, TypeWaypoint, TypeLaunch, TypeWelcome, TypeRules} {
		s := reflector.Reflect(newMessage(t))
		s.Title = t
		s.Description = "minisync wire payload, carried base64 encoded between sentinel characters"
		out[t] = s
	}
	return out
}
