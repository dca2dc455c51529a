// Package schema embeds the JSON schemas used to validate the package
// catalog and the global configuration before either is unmarshalled.
package schema

import _ "embed"

//go:embed catalog-schema.json
var CatalogSchema []byte

//go:embed global-schema.json
var GlobalSchema []byte
