// Package lff parses the flat-file classification format ("lff"/"lof"
// files): un-indented branch headers naming a comma-separated ancestor
// chain, followed by indented leaf lines of the form "  Name [code]".
//
// Both files of a release are parsed into one accumulating
// Classification; every prefix of every branch collects the union of the
// leaves below it, so an ancestor family implicitly contains all leaves
// of its descendants.
package lff
