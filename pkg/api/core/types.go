package core

type APIType string

const (
	APITypeOpenAPI APIType = "openapi"
	APITypeSwagger APIType = "swagger"
	APITypeGraphQL APIType = "graphql"
)

type ParameterLocation string

const (
	ParameterLocationPath   ParameterLocation = "path"
	ParameterLocationQuery  ParameterLocation = "query"
	ParameterLocationHeader ParameterLocation = "header"
	ParameterLocationCookie ParameterLocation = "cookie"
	ParameterLocationBody   ParameterLocation = "body"
)

// Locations lists parameter locations in the order cases are assembled.
var Locations = []ParameterLocation{
	ParameterLocationPath,
	ParameterLocationQuery,
	ParameterLocationHeader,
	ParameterLocationCookie,
	ParameterLocationBody,
}

// Container returns the name of the request component holding parameters
// of this location.
func (l ParameterLocation) Container() string {
	switch l {
	case ParameterLocationPath:
		return "path_parameters"
	case ParameterLocationQuery:
		return "query"
	case ParameterLocationHeader:
		return "headers"
	case ParameterLocationCookie:
		return "cookies"
	case ParameterLocationBody:
		return "body"
	}
	return string(l)
}

func (l ParameterLocation) IsValid() bool {
	for _, known := range Locations {
		if l == known {
			return true
		}
	}
	return false
}

// LocationFromContainer is the inverse of ParameterLocation.Container.
func LocationFromContainer(container string) (ParameterLocation, bool) {
	for _, l := range Locations {
		if l.Container() == container {
			return l, true
		}
	}
	return "", false
}
