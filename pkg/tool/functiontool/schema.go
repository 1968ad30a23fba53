// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package functiontool

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects T into an object schema. Supported tags:
//
//	json:"name"                       parameter name
//	json:",omitempty"                 optional
//	jsonschema:"required"             required
//	jsonschema:"description=..."      description
//	jsonschema:"enum=a,enum=b"        allowed values
//
// The result always has a properties map, possibly empty, since some
// providers reject object schemas without one.
func generateSchema[T any]() (map[string]any, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Struct && t.NumField() == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}

	// ExpandedStruct looks the root up by name, anonymous structs have none.
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             t.Name() != "",
		DoNotReference:             true,
	}

	schemaMap, err := schemaToMap(reflector.Reflect(new(T)))
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}
	if schemaMap["type"] != "object" {
		return schemaMap, nil
	}

	properties, _ := schemaMap["properties"].(map[string]any)
	if properties == nil {
		properties = map[string]any{}
	}
	result := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if required, ok := schemaMap["required"]; ok && required != nil {
		result["required"] = required
	}
	return result, nil
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}
