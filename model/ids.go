package model

import (
	"encoding/base64"
	"strings"

	"github.com/c360/metaquery/errors"
)

const (
	serviceIDSeparator  = "."
	relationIDSeparator = "_"
)

// BuildServiceID encodes a service name. Normal services (instrumented by an
// agent) end in ".1", conjectured ones in ".0".
func BuildServiceID(name string, normal bool) string {
	flag := "0"
	if normal {
		flag = "1"
	}
	return base64.StdEncoding.EncodeToString([]byte(name)) + serviceIDSeparator + flag
}

// ParseServiceID decodes an id built by BuildServiceID.
func ParseServiceID(id string) (name string, normal bool, err error) {
	idx := strings.LastIndex(id, serviceIDSeparator)
	if idx < 0 {
		return "", false, errors.WrapInvalid(errors.ErrMalformedDocument, "ids", "ParseServiceID",
			"locate normal flag in "+id)
	}
	raw, err := base64.StdEncoding.DecodeString(id[:idx])
	if err != nil {
		return "", false, errors.WrapInvalid(err, "ids", "ParseServiceID", "decode service name")
	}
	return string(raw), id[idx+1:] == "1", nil
}

// BuildInstanceID encodes an instance name under its service.
func BuildInstanceID(serviceID, name string) string {
	return serviceID + relationIDSeparator + base64.StdEncoding.EncodeToString([]byte(name))
}

// BuildEndpointID encodes an endpoint name under its service.
func BuildEndpointID(serviceID, name string) string {
	return serviceID + relationIDSeparator + base64.StdEncoding.EncodeToString([]byte(name))
}

// ParseRelationID splits an instance or endpoint id into its service id and name.
func ParseRelationID(id string) (serviceID, name string, err error) {
	idx := strings.Index(id, relationIDSeparator)
	if idx < 0 {
		return "", "", errors.WrapInvalid(errors.ErrMalformedDocument, "ids", "ParseRelationID",
			"locate separator in "+id)
	}
	raw, err := base64.StdEncoding.DecodeString(id[idx+1:])
	if err != nil {
		return "", "", errors.WrapInvalid(err, "ids", "ParseRelationID", "decode name")
	}
	return id[:idx], string(raw), nil
}
