// Test Type: Unit Test
// Description: Tests for the rules package - shorthand expansion into canonical documents

package rules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/rules"
)

// leafFor digs the leaf out of a single-OS tree whose value is expected
// to be unconditional.
func leafFor(t *testing.T, doc *rules.Document, key, osName string) *rules.Leaf {
	t.Helper()
	osDict, ok := doc.Keys[key]
	require.True(t, ok, "key %q missing", key)
	tree, ok := osDict[osName]
	require.True(t, ok, "OS %q missing for key %q", osName, key)
	leaf, ok := tree.(*rules.Leaf)
	require.True(t, ok, "expected leaf for %q/%q, got %T", key, osName, tree)
	return leaf
}

func TestExpand_Shorthands(t *testing.T) {
	tests := []struct {
		name         string
		value        interface{}
		wantPackages []string
	}{
		{
			name:         "string_becomes_single_package",
			value:        "libboost-dev",
			wantPackages: []string{"libboost-dev"},
		},
		{
			name:         "list_becomes_package_list",
			value:        []interface{}{"libboost-dev", "libboost-doc"},
			wantPackages: []string{"libboost-dev", "libboost-doc"},
		},
		{
			name:         "null_becomes_empty_package_list",
			value:        nil,
			wantPackages: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := map[string]interface{}{
				"boost": map[string]interface{}{"ubuntu": tt.value},
			}
			doc, errs := rules.Expand(raw, "test")
			require.Empty(t, errs)

			leaf := leafFor(t, doc, "boost", "ubuntu")
			require.NotNil(t, leaf.Versions.Any, "shorthand should produce any_version")
			assert.Empty(t, leaf.Versions.Any.MinVersion)
			assert.Empty(t, leaf.Versions.Exact)

			rule, ok := leaf.Versions.Any.Installers[rules.DefaultInstaller]
			require.True(t, ok, "shorthand should target the default installer placeholder")
			assert.Equal(t, tt.wantPackages, rule.Packages)
		})
	}
}

func TestExpand_VersionLists(t *testing.T) {
	raw := map[string]interface{}{
		"boost": map[string]interface{}{
			"ubuntu": map[string]interface{}{
				"lucid, maverick, natty": "libboost1.40-dev",
				"trusty":                 "libboost1.54-dev",
			},
		},
	}
	doc, errs := rules.Expand(raw, "test")
	require.Empty(t, errs)

	leaf := leafFor(t, doc, "boost", "ubuntu")
	assert.Len(t, leaf.Versions.Exact, 4)
	for _, version := range []string{"lucid", "maverick", "natty"} {
		dict, ok := leaf.Versions.Exact[version]
		require.True(t, ok, "version %q missing", version)
		assert.Equal(t, []string{"libboost1.40-dev"},
			dict[rules.DefaultInstaller].Packages)
	}
	assert.Equal(t, []string{"libboost1.54-dev"},
		leaf.Versions.Exact["trusty"][rules.DefaultInstaller].Packages)

	// Each version entry must yield an independent installer dict.
	leaf.Versions.Exact["lucid"][rules.DefaultInstaller].Packages[0] = "mutated"
	assert.Equal(t, []string{"libboost1.40-dev"},
		leaf.Versions.Exact["maverick"][rules.DefaultInstaller].Packages)
}

func TestExpand_MalformedVersionLists(t *testing.T) {
	tests := []struct {
		name       string
		versionKey string
	}{
		{name: "duplicate_version_in_list", versionKey: "lucid, lucid"},
		{name: "empty_version_in_list", versionKey: "lucid, , natty"},
		{name: "invalid_version_token", versionKey: "lucid, no spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := map[string]interface{}{
				"boost": map[string]interface{}{
					"ubuntu": map[string]interface{}{
						tt.versionKey: "libboost-dev",
					},
				},
			}
			doc, errs := rules.Expand(raw, "test")
			require.Len(t, errs, 1)
			assert.True(t, errors.IsErrorCode(errs[0], errors.ErrMalformedRule))
			assert.NotContains(t, doc.Keys, "boost")
		})
	}
}

func TestExpand_AnyVersionBounds(t *testing.T) {
	t.Run("inline_bound", func(t *testing.T) {
		raw := map[string]interface{}{
			"boost": map[string]interface{}{
				"ubuntu": map[string]interface{}{
					"any_version>=saucy": "libboost-dev",
				},
			},
		}
		doc, errs := rules.Expand(raw, "test")
		require.Empty(t, errs)

		leaf := leafFor(t, doc, "boost", "ubuntu")
		require.NotNil(t, leaf.Versions.Any)
		assert.Equal(t, "saucy", leaf.Versions.Any.MinVersion)
	})

	t.Run("sibling_geq_key", func(t *testing.T) {
		raw := map[string]interface{}{
			"boost": map[string]interface{}{
				"ubuntu": map[string]interface{}{
					"any_version":     "libboost-dev",
					"any_version_geq": "saucy",
				},
			},
		}
		doc, errs := rules.Expand(raw, "test")
		require.Empty(t, errs)

		leaf := leafFor(t, doc, "boost", "ubuntu")
		require.NotNil(t, leaf.Versions.Any)
		assert.Equal(t, "saucy", leaf.Versions.Any.MinVersion)
	})

	t.Run("conflicting_bounds_rejected", func(t *testing.T) {
		raw := map[string]interface{}{
			"boost": map[string]interface{}{
				"ubuntu": map[string]interface{}{
					"any_version>=saucy": "libboost-dev",
					"any_version_geq":    "trusty",
				},
			},
		}
		_, errs := rules.Expand(raw, "test")
		require.Len(t, errs, 1)
		assert.True(t, errors.IsErrorCode(errs[0], errors.ErrMalformedRule))
	})

	t.Run("geq_without_any_version_rejected", func(t *testing.T) {
		raw := map[string]interface{}{
			"boost": map[string]interface{}{
				"ubuntu": map[string]interface{}{
					"any_version_geq": "saucy",
					"trusty":          "libboost-dev",
				},
			},
		}
		_, errs := rules.Expand(raw, "test")
		require.Len(t, errs, 1)
		assert.True(t, errors.IsErrorCode(errs[0], errors.ErrMalformedRule))
	})
}

func TestExpand_FeatureConjunctions(t *testing.T) {
	raw := map[string]interface{}{
		"foo": map[string]interface{}{
			"ubuntu":                  "foo",
			"ubuntu & python3":        "python3-foo",
			"ubuntu & python3, ruby3": "python3-ruby3-foo",
		},
	}
	doc, errs := rules.Expand(raw, "test")
	require.Empty(t, errs)

	tree, ok := doc.Keys["foo"]["ubuntu"]
	require.True(t, ok)

	// Features are consumed in lexicographic order: python3 first.
	root, ok := tree.(*rules.Decision)
	require.True(t, ok, "expected a decision tree, got %T", tree)
	assert.Equal(t, "python3", root.Feature)

	packagesAt := func(t *testing.T, tree rules.Tree) []string {
		t.Helper()
		leaf, ok := tree.(*rules.Leaf)
		require.True(t, ok, "expected leaf, got %T", tree)
		return leaf.Versions.Any.Installers[rules.DefaultInstaller].Packages
	}

	inactive, ok := root.Inactive.(*rules.Decision)
	require.True(t, ok)
	assert.Equal(t, "ruby3", inactive.Feature)
	assert.Equal(t, []string{"foo"}, packagesAt(t, inactive.Active))
	assert.Equal(t, []string{"foo"}, packagesAt(t, inactive.Inactive))

	active, ok := root.Active.(*rules.Decision)
	require.True(t, ok)
	assert.Equal(t, "ruby3", active.Feature)
	assert.Equal(t, []string{"python3-ruby3-foo"}, packagesAt(t, active.Active))
	assert.Equal(t, []string{"python3-foo"}, packagesAt(t, active.Inactive))
}

func TestExpand_DuplicateFeatureConjunctionRejected(t *testing.T) {
	// Feature order within a conjunction is irrelevant, so these two
	// keys name the same condition.
	raw := map[string]interface{}{
		"foo": map[string]interface{}{
			"ubuntu & python3, ruby3": "a",
			"ubuntu & ruby3, python3": "b",
		},
	}
	_, errs := rules.Expand(raw, "test")
	require.Len(t, errs, 1)
	assert.True(t, errors.IsErrorCode(errs[0], errors.ErrMalformedRule))
	assert.Contains(t, errs[0].Error(), "duplicate feature conjunction")
}

func TestExpand_InstallerRuleFields(t *testing.T) {
	raw := map[string]interface{}{
		"boost": map[string]interface{}{
			"ubuntu": map[string]interface{}{
				"any_version": map[string]interface{}{
					"apt": map[string]interface{}{
						"packages":     []interface{}{"libboost-dev"},
						"priority":     10,
						"repositories": []interface{}{"universe"},
					},
					"pip": map[string]interface{}{
						"disable": true,
					},
				},
			},
		},
	}
	doc, errs := rules.Expand(raw, "test")
	require.Empty(t, errs)

	leaf := leafFor(t, doc, "boost", "ubuntu")
	apt := leaf.Versions.Any.Installers["apt"]
	require.NotNil(t, apt)
	assert.Equal(t, []string{"libboost-dev"}, apt.Packages)
	require.NotNil(t, apt.Priority)
	assert.Equal(t, 10, *apt.Priority)
	assert.Equal(t, []interface{}{"universe"}, apt.Options["repositories"])
	assert.False(t, apt.Disable)

	pip := leaf.Versions.Any.Installers["pip"]
	require.NotNil(t, pip)
	assert.True(t, pip.Disable)
}

func TestExpand_PerKeyInstallerOptions(t *testing.T) {
	raw := map[string]interface{}{
		"boost": map[string]interface{}{
			"ubuntu": map[string]interface{}{
				"any_version": map[string]interface{}{
					"apt": "libboost-dev",
					"pip": map[string]interface{}{
						"packages":    []interface{}{"pyboost"},
						"extra_index": "https://mirror.example",
					},
				},
			},
			"_installer_options": map[string]interface{}{
				"apt": map[string]interface{}{"repositories": []interface{}{"universe"}},
				"pip": map[string]interface{}{"extra_index": "https://other.example"},
			},
		},
	}
	doc, errs := rules.Expand(raw, "test")
	require.Empty(t, errs)

	leaf := leafFor(t, doc, "boost", "ubuntu")
	apt := leaf.Versions.Any.Installers["apt"]
	require.NotNil(t, apt)
	assert.Equal(t, []interface{}{"universe"}, apt.Options["repositories"])

	// Options set directly on a rule win over the per-key block.
	pip := leaf.Versions.Any.Installers["pip"]
	require.NotNil(t, pip)
	assert.Equal(t, "https://mirror.example", pip.Options["extra_index"])

	// The block is folded in, not kept as a phantom OS entry.
	assert.NotContains(t, doc.Keys["boost"], "_installer_options")
}

func TestExpand_MalformedInstallerOptionsBlock(t *testing.T) {
	raw := map[string]interface{}{
		"boost": map[string]interface{}{
			"ubuntu":             "libboost-dev",
			"_installer_options": map[string]interface{}{"apt": "not a mapping"},
		},
	}
	doc, errs := rules.Expand(raw, "test")
	require.Len(t, errs, 1)
	assert.True(t, errors.IsErrorCode(errs[0], errors.ErrMalformedRule))
	assert.NotContains(t, doc.Keys, "boost")
}

func TestExpand_InvalidKeysAreIsolated(t *testing.T) {
	raw := map[string]interface{}{
		"bad key": "nope",
		"boost":   map[string]interface{}{"ubuntu": "libboost-dev"},
	}
	doc, errs := rules.Expand(raw, "test")
	require.Len(t, errs, 1)
	assert.True(t, errors.IsErrorCode(errs[0], errors.ErrMalformedRule))
	assert.Contains(t, doc.Keys, "boost")
	assert.NotContains(t, doc.Keys, "bad key")
}

func TestExpand_TopLevelShape(t *testing.T) {
	t.Run("nil_document_is_empty", func(t *testing.T) {
		doc, errs := rules.Expand(nil, "test")
		require.Empty(t, errs)
		assert.Empty(t, doc.Keys)
	})

	t.Run("non_mapping_rejected", func(t *testing.T) {
		_, errs := rules.Expand([]interface{}{"boost"}, "test")
		require.Len(t, errs, 1)
		assert.True(t, errors.IsErrorCode(errs[0], errors.ErrMalformedRule))
	})
}

func TestExpand_Idempotent(t *testing.T) {
	raw := map[string]interface{}{
		"boost": map[string]interface{}{
			"debian": "libboost-dev",
			"ubuntu": map[string]interface{}{
				"lucid, maverick":    "libboost1.40-dev",
				"any_version>=saucy": "libboost1.54-dev",
			},
		},
		"foo": map[string]interface{}{
			"ubuntu":           "foo",
			"ubuntu & python3": "python3-foo",
		},
	}
	doc, errs := rules.Expand(raw, "test")
	require.Empty(t, errs)

	canonical := doc.ToRaw()
	again, errs := rules.Expand(canonical, "test")
	require.Empty(t, errs)
	assert.Equal(t, canonical, again.ToRaw())
}
