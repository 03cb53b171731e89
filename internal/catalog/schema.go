package catalog

// schemaSource constrains the shape of a catalog before it is compiled.
const schemaSource = `
#Type: "int" | "float" | "string" | "bool" | "date" | "decimal" | "blob"

#Attr: {
	name: string & =~"^[A-Za-z_][A-Za-z0-9_]*$"
	type: #Type
}

#Table: {
	tier:    *"manual" | "lookup" | "imported" | "computed"
	key:     *[] | [...#Attr]
	attrs:   *[] | [...#Attr]
	depends: *[] | [...string]
	make?:   string
	comment?: string
}

table: [string]: #Table
`
