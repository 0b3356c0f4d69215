package wire

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"tudeyarena/scene"
)

// Messages 汇总所有线上消息，仅用于生成 JSON Schema
type Messages struct {
	Delta  scene.SceneDelta `json:"delta"`
	Client ClientMessage    `json:"client"`
}

// Schema 生成线上消息的 JSON Schema（JSON 文本形式的字段名）
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
	}
	return r.Reflect(&Messages{})
}

// SchemaJSON 序列化后的 Schema，供管理接口输出
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
