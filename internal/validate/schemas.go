package validate

// Request body schemas for the JSON routes.
var (
	Register = MustCompile("register", `{
		"type": "object",
		"required": ["email", "password", "name"],
		"properties": {
			"email":    {"type": "string", "format": "email"},
			"password": {"type": "string", "minLength": 8},
			"name":     {"type": "string", "minLength": 2}
		}
	}`)

	Login = MustCompile("login", `{
		"type": "object",
		"required": ["email", "password"],
		"properties": {
			"email":    {"type": "string", "format": "email"},
			"password": {"type": "string", "minLength": 1}
		}
	}`)

	Extract = MustCompile("extract", `{
		"type": "object",
		"required": ["transcription", "extractionType"],
		"properties": {
			"transcription":  {"type": "string", "minLength": 10},
			"extractionType": {"$ref": "#/definitions/extractionType"},
			"customSchema":   {"$ref": "#/definitions/customSchema"}
		},
		"definitions": `+definitions+`
	}`)

	Batch = MustCompile("batch", `{
		"type": "object",
		"required": ["transcriptions", "extractionType"],
		"properties": {
			"transcriptions": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["id", "text"],
					"properties": {
						"id":   {"type": ["string", "integer"]},
						"text": {"type": "string", "minLength": 1}
					}
				}
			},
			"extractionType": {"$ref": "#/definitions/extractionType"},
			"customSchema":   {"$ref": "#/definitions/customSchema"}
		},
		"definitions": `+definitions+`
	}`)
)

const definitions = `{
	"extractionType": {
		"type": "string",
		"enum": ["repair_details", "parts_inventory", "labor_hours", "customer_info", "damage_assessment", "custom"]
	},
	"customSchema": {
		"type": "object",
		"properties": {
			"fields":      {"type": "array", "items": {"type": "string", "minLength": 1}},
			"description": {"type": "string"}
		}
	}
}`
