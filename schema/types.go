package schema

import (
	"github.com/graphql-go/graphql"

	"github.com/c360/metaquery/model"
	"github.com/c360/metaquery/pkg/timebucket"
)

// Type and field names shared by the schema and its tests.
const (
	TypeService         = "Service"
	TypeServiceInstance = "ServiceInstance"
	TypeAttribute       = "Attribute"
	TypeEndpoint        = "Endpoint"
	TypeDuration        = "Duration"
	TypeStep            = "Step"
	TypeLanguage        = "Language"

	ArgLayer      = "layer"
	ArgGroup      = "group"
	ArgServiceID  = "serviceId"
	ArgInstanceID = "instanceId"
	ArgDuration   = "duration"
	ArgKeyword    = "keyword"
	ArgLimit      = "limit"
)

// types holds the object types of one schema. graphql-go types are bound to
// the schema they are built for, so each New call builds its own set.
type types struct {
	service   *graphql.Object
	instance  *graphql.Object
	attribute *graphql.Object
	endpoint  *graphql.Object
	duration  *graphql.InputObject
	step      *graphql.Enum
	language  *graphql.Enum
}

func newTypes() *types {
	t := &types{}

	t.step = graphql.NewEnum(graphql.EnumConfig{
		Name: TypeStep,
		Values: graphql.EnumValueConfigMap{
			string(timebucket.StepSecond): &graphql.EnumValueConfig{Value: timebucket.StepSecond},
			string(timebucket.StepMinute): &graphql.EnumValueConfig{Value: timebucket.StepMinute},
			string(timebucket.StepHour):   &graphql.EnumValueConfig{Value: timebucket.StepHour},
			string(timebucket.StepDay):    &graphql.EnumValueConfig{Value: timebucket.StepDay},
		},
	})

	languages := graphql.EnumValueConfigMap{}
	for _, lang := range model.Languages {
		languages[string(lang)] = &graphql.EnumValueConfig{Value: lang}
	}
	t.language = graphql.NewEnum(graphql.EnumConfig{
		Name:   TypeLanguage,
		Values: languages,
	})

	t.duration = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: TypeDuration,
		Fields: graphql.InputObjectConfigFieldMap{
			"start": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"end":   &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"step":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(t.step)},
		},
	})

	t.service = graphql.NewObject(graphql.ObjectConfig{
		Name: TypeService,
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"shortName": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"group":     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"layers":    &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.String)))},
		},
	})

	t.attribute = graphql.NewObject(graphql.ObjectConfig{
		Name: TypeAttribute,
		Fields: graphql.Fields{
			"name":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"value": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	t.instance = graphql.NewObject(graphql.ObjectConfig{
		Name: TypeServiceInstance,
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name":         &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"instanceUUID": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"layer":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"language":     &graphql.Field{Type: graphql.NewNonNull(t.language)},
			"attributes":   &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(t.attribute)))},
		},
	})

	t.endpoint = graphql.NewObject(graphql.ObjectConfig{
		Name: TypeEndpoint,
		Fields: graphql.Fields{
			"id":   &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	return t
}

// durationArg reads a Duration input value.
func durationArg(raw any) timebucket.Duration {
	m, _ := raw.(map[string]any)
	var d timebucket.Duration
	d.Start, _ = m["start"].(string)
	d.End, _ = m["end"].(string)
	switch step := m["step"].(type) {
	case timebucket.Step:
		d.Step = step
	case string:
		d.Step = timebucket.Step(step)
	}
	return d
}
