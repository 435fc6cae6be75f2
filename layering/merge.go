package layering

// Merge composes derived on top of base, returning a new document. When both
// sides carry a document under the same key the two are merged recursively;
// any other derived value overwrites the base value. Neither input is
// modified. Merging a document with itself yields an equal document.
func Merge(base, derived *Document) *Document {
	if base == nil {
		return derived.Clone()
	}
	result := base.Clone()
	if derived == nil {
		return result
	}
	for _, key := range derived.keys {
		value := derived.values[key]
		existing, ok := result.values[key]
		if ok {
			existingDoc, existingIsDoc := existing.(*Document)
			valueDoc, valueIsDoc := value.(*Document)
			if existingIsDoc && valueIsDoc {
				result.values[key] = Merge(existingDoc, valueDoc)
				continue
			}
		}
		result.Set(key, cloneValue(value))
	}
	return result
}

// Update shallow-merges the entries of overlay into target, overwriting
// existing keys in place. Used for definition overrides, which replace whole
// property values rather than merging them.
func Update(target, overlay *Document) {
	if target == nil || overlay == nil {
		return
	}
	for _, key := range overlay.keys {
		target.Set(key, cloneValue(overlay.values[key]))
	}
}
