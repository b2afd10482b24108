package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches {{ resource.<path> }} placeholders inside
// templated property values.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\-]+)\s*\}\}`)

// SubstituteValue resolves every {{ resource.<path> }} placeholder in the
// template string against the primary resource's serialized fields.
//
// When a placeholder resolves to a list, the list is substituted wholesale:
// it becomes the entire result and any literal text around it is discarded,
// since list values cannot be meaningfully concatenated into a string. All
// other values are interpolated into the surrounding text and the result is
// a single string. A path that does not resolve is a configuration error.
func SubstituteValue(template string, primary map[string]any) (any, error) {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)

	result := template
	for _, match := range matches {
		value, err := lookupPath(primary, match[1])
		if err != nil {
			return nil, err
		}

		if list, ok := value.([]any); ok {
			return list, nil
		}

		result = strings.Replace(result, match[0], stringify(value), 1)
	}

	return result, nil
}

// lookupPath walks a dotted path into the primary resource's serialized
// fields. The leading "resource" segment names the primary resource itself.
func lookupPath(primary map[string]any, path string) (any, error) {
	segments := strings.Split(path, ".")
	if segments[0] != "resource" {
		return nil, NewConfigurationError("substitution path must start with 'resource': "+path, nil)
	}

	var current any = primary
	for _, segment := range segments[1:] {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, NewConfigurationError("substitution path not found: "+path, nil)
		}
		current, ok = node[segment]
		if !ok {
			return nil, NewConfigurationError("substitution path not found: "+path, nil)
		}
	}
	return current, nil
}

// stringify renders a scalar placeholder value for interpolation. JSON
// numbers arrive as float64 and must not pick up a trailing ".0".
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// substituteDeep applies SubstituteValue to every string leaf of a templated
// value, recursing through objects and arrays.
func substituteDeep(value any, primary map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return SubstituteValue(v, primary)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			sub, err := substituteDeep(item, primary)
			if err != nil {
				return nil, err
			}
			out[key] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			sub, err := substituteDeep(item, primary)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return value, nil
	}
}

// SubstituteProperties computes the property document to patch onto a
// pipeline step's target resource. Each declared property substitution is
// resolved against the primary resource and applied to a copy of the target
// resource's current properties; the stored target is never mutated here.
// The caller persists the returned document only after the downstream patch
// succeeds.
func SubstituteProperties(step PipelineStep, primary, target *Resource) (map[string]any, error) {
	primaryMap, err := toDocument(primary)
	if err != nil {
		return nil, err
	}

	properties, err := deepCopyProperties(target.Properties)
	if err != nil {
		return nil, err
	}

	for _, prop := range step.Properties {
		value, err := substituteDeep(prop.Value, primaryMap)
		if err != nil {
			return nil, NewConfigurationError("substitution failed for property "+prop.Name, err).WithStep(step.StepID)
		}
		if err := applyProperty(properties, prop.Name, value, prop.ArraySubstitutionAction); err != nil {
			return nil, err
		}
	}

	return properties, nil
}

// applyProperty writes a substituted value at the dotted property path,
// honoring the declared array substitution action.
func applyProperty(properties map[string]any, path string, value any, action SubstitutionAction) error {
	parent, key, err := resolveParent(properties, path, action != SubstitutionSet)
	if err != nil {
		return err
	}

	switch action {
	case SubstitutionSet:
		parent[key] = value
		return nil
	case SubstitutionAppend:
		return appendElement(parent, key, path, value)
	case SubstitutionRemove:
		return removeElement(parent, key, path, value)
	case SubstitutionReplace:
		return replaceElement(parent, key, path, value)
	default:
		return NewValidationError("unknown array substitution action: "+string(action), nil)
	}
}

// resolveParent walks to the map holding the final path segment, creating
// intermediate maps as needed. For array actions an absent leaf is
// initialized to an empty array so append/remove/replace always see one.
func resolveParent(properties map[string]any, path string, initArray bool) (map[string]any, string, error) {
	segments := strings.Split(path, ".")
	current := properties
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment]
		if !ok {
			child := make(map[string]any)
			current[segment] = child
			current = child
			continue
		}
		node, ok := next.(map[string]any)
		if !ok {
			return nil, "", NewValidationError("property path "+path+" crosses a non-object value", nil)
		}
		current = node
	}

	key := segments[len(segments)-1]
	if initArray {
		if _, ok := current[key]; !ok {
			current[key] = []any{}
		}
	}
	return current, key, nil
}

func arrayAt(parent map[string]any, key, path string) ([]any, error) {
	arr, ok := parent[key].([]any)
	if !ok {
		return nil, NewValidationError("property path "+path+" does not reference an array", nil)
	}
	return arr, nil
}

// elementName extracts the "name" field used to match array elements for
// remove/replace actions.
func elementName(value any) (string, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return "", NewValidationError("array substitution values must be objects with a name field", nil)
	}
	name, ok := obj["name"].(string)
	if !ok {
		return "", NewValidationError("array substitution values must carry a string name field", nil)
	}
	return name, nil
}

func appendElement(parent map[string]any, key, path string, value any) error {
	arr, err := arrayAt(parent, key, path)
	if err != nil {
		return err
	}
	parent[key] = append(arr, value)
	return nil
}

// removeElement removes the first element whose name matches the value's
// name. Removing from an absent or empty array is a no-op.
func removeElement(parent map[string]any, key, path string, value any) error {
	arr, err := arrayAt(parent, key, path)
	if err != nil {
		return err
	}
	name, err := elementName(value)
	if err != nil {
		return err
	}

	for i, element := range arr {
		if obj, ok := element.(map[string]any); ok && obj["name"] == name {
			parent[key] = append(arr[:i:i], arr[i+1:]...)
			return nil
		}
	}
	return nil
}

// replaceElement replaces the element whose name matches, preserving its
// position. When no element matches, the value is appended instead: a
// pipeline may replace a rule that an earlier run never created.
func replaceElement(parent map[string]any, key, path string, value any) error {
	arr, err := arrayAt(parent, key, path)
	if err != nil {
		return err
	}
	name, err := elementName(value)
	if err != nil {
		return err
	}

	for i, element := range arr {
		if obj, ok := element.(map[string]any); ok && obj["name"] == name {
			arr[i] = value
			return nil
		}
	}
	parent[key] = append(arr, value)
	return nil
}

// toDocument serializes a resource to the generic map form substitution
// paths are resolved against.
func toDocument(resource *Resource) (map[string]any, error) {
	raw, err := json.Marshal(resource)
	if err != nil {
		return nil, NewInternalError("failed to serialize resource", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, NewInternalError("failed to deserialize resource", err)
	}
	return doc, nil
}

func deepCopyProperties(properties map[string]any) (map[string]any, error) {
	if properties == nil {
		return make(map[string]any), nil
	}
	raw, err := json.Marshal(properties)
	if err != nil {
		return nil, NewInternalError("failed to copy properties", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, NewInternalError("failed to copy properties", err)
	}
	return out, nil
}
