// Package queueparams models the queue environment parameters a farm queue
// exposes and merges user-entered values with refreshed definitions.
package queueparams

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NamePrefix marks parameter storage slots as queue-environment owned so
// they can be told apart from user-defined parameters.
const NamePrefix = "queue_env_do_not_use_"

// Control values a definition's user interface may request.
const (
	ControlHidden       = "HIDDEN"
	ControlDropdownList = "DROPDOWN_LIST"
	ControlCheckbox     = "CHECK_BOX"
)

// UserInterface carries the display hints of a parameter definition.
type UserInterface struct {
	Control    string `json:"control,omitempty"`
	Label      string `json:"label,omitempty"`
	GroupLabel string `json:"groupLabel,omitempty"`
}

// Definition is one queue parameter definition as returned by the farm.
type Definition struct {
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Default       string         `json:"default,omitempty"`
	Description   string         `json:"description,omitempty"`
	AllowedValues []string       `json:"allowedValues,omitempty"`
	MinValue      string         `json:"minValue,omitempty"`
	MaxValue      string         `json:"maxValue,omitempty"`
	UserInterface *UserInterface `json:"userInterface,omitempty"`
}

// Value is a resolved parameter value ready for submission.
type Value struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PrefixedName returns the storage name for a definition name.
func PrefixedName(name string) string {
	return NamePrefix + name
}

// NameWithoutPrefix strips the storage prefix, erroring when the name was
// not queue-environment owned.
func NameWithoutPrefix(prefixed string) (string, error) {
	if !strings.HasPrefix(prefixed, NamePrefix) {
		return "", fmt.Errorf("parameter name %q does not carry the %q prefix", prefixed, NamePrefix)
	}
	return strings.TrimPrefix(prefixed, NamePrefix), nil
}

// Label returns the display label, falling back to the parameter name.
func (d Definition) Label() string {
	if d.UserInterface != nil && d.UserInterface.Label != "" {
		return d.UserInterface.Label
	}
	return d.Name
}

// Hidden reports whether the definition asked not to be shown.
func (d Definition) Hidden() bool {
	return d.UserInterface != nil && d.UserInterface.Control == ControlHidden
}

// MenuItems returns the dropdown choices of a DROPDOWN_LIST definition. A
// dropdown without allowed values is a definition error.
func (d Definition) MenuItems() ([]string, error) {
	if d.UserInterface == nil || d.UserInterface.Control != ControlDropdownList {
		return nil, nil
	}
	if len(d.AllowedValues) == 0 {
		return nil, fmt.Errorf("queue parameter %q has a DROPDOWN_LIST control but no allowed values", d.Name)
	}
	return d.AllowedValues, nil
}

// checkboxSets maps a sorted allowed-value pair to its canonical form.
var checkboxSets = map[string]string{
	"false\x00true": "true,false",
	"no\x00yes":     "yes,no",
	"off\x00on":     "on,off",
	"0\x001":        "1,0",
}

var truthy = map[string]struct{}{
	"true": {}, "yes": {}, "on": {}, "1": {},
}

var boolStrings = map[string]struct{}{
	"true": {}, "false": {}, "yes": {}, "no": {}, "on": {}, "off": {}, "1": {}, "0": {},
}

// Checkbox reports whether the definition renders as a checkbox and, if so,
// the canonical allowed-value set (for example "yes,no"). A CHECK_BOX
// control with any other allowed values is a definition error.
func (d Definition) Checkbox() (string, bool, error) {
	if d.UserInterface == nil || d.UserInterface.Control != ControlCheckbox {
		return "", false, nil
	}
	if len(d.AllowedValues) == 0 {
		return "", false, fmt.Errorf("queue parameter %q has a CHECK_BOX control but no allowed values", d.Name)
	}
	sorted := append([]string(nil), d.AllowedValues...)
	sort.Strings(sorted)
	canonical, ok := checkboxSets[strings.Join(sorted, "\x00")]
	if !ok {
		return "", false, fmt.Errorf("queue parameter %q has a CHECK_BOX control but allowed values %v are not a boolean pair",
			d.Name, d.AllowedValues)
	}
	return canonical, true, nil
}

// Truthy reports whether a raw value parses as boolean true.
func Truthy(value string) bool {
	_, ok := truthy[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// EquivalentBool converts a recognized boolean string to its value. The
// second result is false for values that are not boolean strings at all.
func EquivalentBool(value string) (bool, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if _, ok := boolStrings[normalized]; !ok {
		return false, false
	}
	return Truthy(normalized), true
}

// BoolString renders a boolean in the spelling a checkbox's allowed-value
// set expects.
func BoolString(allowed string, value bool) (string, error) {
	pair := strings.SplitN(allowed, ",", 2)
	if len(pair) != 2 {
		return "", fmt.Errorf("unknown allowed bool strings %q", allowed)
	}
	if _, known := checkboxSets[canonicalKey(pair)]; !known {
		return "", fmt.Errorf("unknown allowed bool strings %q", allowed)
	}
	if value {
		return pair[0], nil
	}
	return pair[1], nil
}

func canonicalKey(pair []string) string {
	sorted := append([]string(nil), pair...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// Groups partitions definitions by their group label. Definitions without a
// label land in the second result. Group names come back sorted, members
// sorted by name within each group.
func Groups(defs []Definition) (map[string][]Definition, []Definition) {
	groups := map[string][]Definition{}
	var ungrouped []Definition
	for _, def := range defs {
		if def.UserInterface != nil && def.UserInterface.GroupLabel != "" {
			label := def.UserInterface.GroupLabel
			groups[label] = append(groups[label], def)
			continue
		}
		ungrouped = append(ungrouped, def)
	}
	for label := range groups {
		members := groups[label]
		sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
		groups[label] = members
	}
	return groups, ungrouped
}

// Merge resolves final parameter values from refreshed definitions and
// previously entered values. A stored value survives only when a definition
// of the same name still exists and the value fits its type; otherwise the
// definition's default applies. Checkbox values are normalized to the
// definition's allowed spelling.
func Merge(defs []Definition, stored map[string]string) ([]Value, error) {
	values := make([]Value, 0, len(defs))
	for _, def := range defs {
		value := def.Default
		if existing, ok := stored[def.Name]; ok && fitsType(def.Type, existing) {
			value = existing
		}

		allowed, isCheckbox, err := def.Checkbox()
		if err != nil {
			return nil, err
		}
		if isCheckbox {
			boolValue, ok := EquivalentBool(value)
			if !ok {
				boolValue = false
			}
			if value, err = BoolString(allowed, boolValue); err != nil {
				return nil, err
			}
		}
		values = append(values, Value{Name: def.Name, Value: value})
	}
	return values, nil
}

func fitsType(defType, value string) bool {
	switch defType {
	case "INT":
		_, err := strconv.Atoi(value)
		return err == nil
	case "FLOAT":
		_, err := strconv.ParseFloat(value, 64)
		return err == nil
	default:
		return true
	}
}
