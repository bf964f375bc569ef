package lff

// Aliases records the name aliases produced by the family collapsing
// pass. They are re-applied as historical names when leaf instructions
// are compiled.
type Aliases struct {
	// IsolateNames maps a dissolved single-member family name to the code
	// of the language that became an isolate.
	IsolateNames map[string]string

	// CollapsedNames maps a dissolved branch's own name to the code of the
	// leaf that was absorbed into the branch's parent.
	CollapsedNames map[string]string

	// Reverse lookups, filled in collapse order so the last recorded alias
	// for a code wins deterministically.
	isolateByCode   map[string]string
	collapsedByCode map[string]string
}

// HName returns the historical name recorded for a code, if any.
// Collapsed-branch aliases take precedence over isolate aliases.
func (a *Aliases) HName(code string) (string, bool) {
	if name, ok := a.collapsedByCode[code]; ok {
		return name, true
	}
	if name, ok := a.isolateByCode[code]; ok {
		return name, true
	}
	return "", false
}

// Collapse folds every singleton family: a single-leaf root family
// becomes an isolate, a deeper single-leaf branch is absorbed into its
// parent. The dissolved branches are removed from the family map and the
// displaced names are recorded as aliases.
func (c *Classification) Collapse() *Aliases {
	aliases := &Aliases{
		IsolateNames:    map[string]string{},
		CollapsedNames:  map[string]string{},
		isolateByCode:   map[string]string{},
		collapsedByCode: map[string]string{},
	}

	remaining := c.famOrder[:0]
	for _, key := range c.famOrder {
		fam := c.families[key]
		if len(fam.Leaves) != 1 {
			remaining = append(remaining, key)
			continue
		}
		var code string
		for code = range fam.Leaves {
		}
		name := fam.Branch.Name()
		if len(fam.Branch) == 1 {
			c.languages[code].Branch = nil
			aliases.IsolateNames[name] = code
			aliases.isolateByCode[code] = name
		} else {
			c.languages[code].Branch = fam.Branch.Parent()
			aliases.CollapsedNames[name] = code
			aliases.collapsedByCode[code] = name
		}
		delete(c.families, key)
	}
	c.famOrder = remaining

	return aliases
}
