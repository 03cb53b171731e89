// Package catalog loads a pipeline of table declarations written in CUE.
//
//	table: Subject: {
//		tier: "manual"
//		key: [{name: "subject_id", type: "int"}]
//		attrs: [{name: "species", type: "string"}]
//	}
//	table: Summary: {
//		tier: "computed"
//		depends: ["Session"]
//		attrs: [{name: "trace", type: "blob"}]
//		make: "copy"
//	}
//
// A table's primary key is the primary keys of its dependencies, in
// declaration order, followed by its own key attributes. Computed and
// imported tables are auto-populated: their populate relation is the natural
// join of their dependencies, and their rows are made by the maker named in
// make.
package catalog
