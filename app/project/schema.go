package project

import "github.com/invopop/jsonschema"

// Collection is the stored list of projects, newest first
type Collection []Project

// GenerateSchema generates JSON schema of the stored project collection
func GenerateSchema() *jsonschema.Schema {
	res := jsonschema.Reflect(&Collection{})
	res.Title = "Tunivo projects storage schema"
	res.Description = "Schema for locally tracked projects slot"
	return res
}
