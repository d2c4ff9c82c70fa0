package intake

import "github.com/santhosh-tekuri/jsonschema/v5"

// alertSchema gates the payload shape before the tolerant field reads: a
// JSON object naming a symbol (symbol|ticker) and a direction token
// (direction|order|side). Numeric fields arrive as strings from some chart
// setups, so price/qty/leverage stay unconstrained here and are coerced
// later.
var alertSchema = jsonschema.MustCompileString("alert.json", `{
	"type": "object",
	"allOf": [
		{"anyOf": [{"required": ["symbol"]}, {"required": ["ticker"]}]},
		{"anyOf": [{"required": ["direction"]}, {"required": ["order"]}, {"required": ["side"]}]}
	]
}`)
