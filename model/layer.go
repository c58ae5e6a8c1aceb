package model

import (
	"fmt"
	"strings"

	"github.com/c360/metaquery/errors"
)

// Layer classifies metadata by technology domain. It is persisted as its
// integer value and exposed through the API by name.
type Layer int

// Known layers
const (
	LayerUndefined       Layer = 0
	LayerMesh            Layer = 1
	LayerGeneral         Layer = 2
	LayerOSLinux         Layer = 3
	LayerK8s             Layer = 4
	LayerFaaS            Layer = 5
	LayerMeshCP          Layer = 6
	LayerMeshDP          Layer = 7
	LayerDatabase        Layer = 8
	LayerCache           Layer = 9
	LayerBrowser         Layer = 10
	LayerSO11yOAP        Layer = 11
	LayerSO11ySatellite  Layer = 12
	LayerMQ              Layer = 13
	LayerVirtualDatabase Layer = 14
	LayerVirtualMQ       Layer = 15
	LayerVirtualGateway  Layer = 16
	LayerK8sService      Layer = 17
)

var layerNames = map[Layer]string{
	LayerUndefined:       "UNDEFINED",
	LayerMesh:            "MESH",
	LayerGeneral:         "GENERAL",
	LayerOSLinux:         "OS_LINUX",
	LayerK8s:             "K8S",
	LayerFaaS:            "FAAS",
	LayerMeshCP:          "MESH_CP",
	LayerMeshDP:          "MESH_DP",
	LayerDatabase:        "DATABASE",
	LayerCache:           "CACHE",
	LayerBrowser:         "BROWSER",
	LayerSO11yOAP:        "SO11Y_OAP",
	LayerSO11ySatellite:  "SO11Y_SATELLITE",
	LayerMQ:              "MQ",
	LayerVirtualDatabase: "VIRTUAL_DATABASE",
	LayerVirtualMQ:       "VIRTUAL_MQ",
	LayerVirtualGateway:  "VIRTUAL_GATEWAY",
	LayerK8sService:      "K8S_SERVICE",
}

var layersByName = func() map[string]Layer {
	m := make(map[string]Layer, len(layerNames))
	for l, name := range layerNames {
		m[name] = l
	}
	return m
}()

// String returns the layer name, UNDEFINED for values outside the known set.
func (l Layer) String() string {
	if name, ok := layerNames[l]; ok {
		return name
	}
	return layerNames[LayerUndefined]
}

// Value returns the persisted integer form.
func (l Layer) Value() int {
	return int(l)
}

// LayerFromValue resolves a persisted value. Unknown values map to LayerUndefined.
func LayerFromValue(v int64) Layer {
	l := Layer(v)
	if _, ok := layerNames[l]; ok {
		return l
	}
	return LayerUndefined
}

// ParseLayer resolves a layer name as supplied by callers. Names are exact
// upper-case matches; surrounding whitespace is ignored.
func ParseLayer(name string) (Layer, error) {
	if l, ok := layersByName[strings.TrimSpace(name)]; ok {
		return l, nil
	}
	return LayerUndefined, errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownLayer, name),
		"Layer", "ParseLayer", "resolve layer name")
}

// LayerNames lists every known layer name in value order.
func LayerNames() []string {
	names := make([]string, 0, len(layerNames))
	for l := LayerUndefined; l <= LayerK8sService; l++ {
		names = append(names, layerNames[l])
	}
	return names
}
