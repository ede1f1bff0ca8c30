package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_ValidFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(file, []byte(testRolesYAML), 0644))

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := runValidate([]string{"-file", file})

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Role configuration is valid")
}

func TestValidateCommand_CyclicHierarchy(t *testing.T) {
	cyclic := `roles:
  - name: alpha
    permissions:
      - action: read
        resource: user
    parent_roles: [beta]
  - name: beta
    permissions:
      - action: read
        resource: session
    parent_roles: [alpha]
`
	file := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(file, []byte(cyclic), 0644))

	err := runValidate([]string{"-file", file})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidateCommand_BadPermission(t *testing.T) {
	empty := `roles:
  - name: broken
    permissions:
      - action: ""
        resource: user
`
	file := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(file, []byte(empty), 0644))

	err := runValidate([]string{"-file", file})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	err := runValidate([]string{"-file", filepath.Join(t.TempDir(), "absent.yaml")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}
