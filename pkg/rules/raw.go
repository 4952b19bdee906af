package rules

// ToRaw renders the document back into the canonical raw mapping
// shape, the same shape Expand accepts. Expanding the result yields an
// equal document, which is what makes expansion idempotent and lets
// the merged database round-trip through YAML.
func (d *Document) ToRaw() map[string]interface{} {
	result := make(map[string]interface{}, len(d.Keys))
	for key, osDict := range d.Keys {
		result[key] = osDict.ToRaw()
	}
	return result
}

// ToRaw renders the OS dict into canonical raw form.
func (o OSDict) ToRaw() map[string]interface{} {
	result := make(map[string]interface{}, len(o))
	for osName, tree := range o {
		result[osName] = treeToRaw(tree)
	}
	return result
}

func treeToRaw(tree Tree) interface{} {
	switch t := tree.(type) {
	case *Leaf:
		return versionDictToRaw(t.Versions)
	case *Decision:
		node := map[string]interface{}{"feature": t.Feature}
		if t.Active != nil {
			node["active"] = treeToRaw(t.Active)
		}
		if t.Inactive != nil {
			node["inactive"] = treeToRaw(t.Inactive)
		}
		return node
	}
	return nil
}

func versionDictToRaw(v *VersionDict) map[string]interface{} {
	result := make(map[string]interface{})
	if v == nil {
		return result
	}
	for version, dict := range v.Exact {
		result[version] = installerDictToRaw(dict)
	}
	if v.Any != nil {
		result[AnyVersion] = installerDictToRaw(v.Any.Installers)
		if v.Any.MinVersion != "" {
			result[AnyVersionGeq] = v.Any.MinVersion
		}
	}
	return result
}

func installerDictToRaw(d InstallerDict) map[string]interface{} {
	result := make(map[string]interface{}, len(d))
	for name, rule := range d {
		result[name] = installerRuleToRaw(rule)
	}
	return result
}

func installerRuleToRaw(r *InstallerRule) map[string]interface{} {
	result := map[string]interface{}{
		"packages": append([]string{}, r.Packages...),
	}
	if r.Priority != nil {
		result["priority"] = *r.Priority
	}
	if r.Disable {
		result["disable"] = true
	}
	for k, v := range r.Options {
		result[k] = v
	}
	return result
}
