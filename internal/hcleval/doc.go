// Package hcleval executes modules written in HCL.
//
// A module is a sequence of blocks:
//
//	import "b" {
//	  from  = "./b.hcl"
//	  names = ["greeting"]
//	}
//	export_all { from = "./c.hcl" }
//	export "answer" { value = upper(b.greeting) }
//	hot { accept = true }
//
// Imports run first, in file order, and each alias becomes a variable holding
// an object snapshot of the imported namespace. Export expressions run next
// and bind fixed values, so a local export shadows a same-named binding of a
// star re-export, which runs after them. The hot block comes last. The
// variable "meta" describes the module itself.
package hcleval
