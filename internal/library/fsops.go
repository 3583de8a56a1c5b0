// Copyright 2025 MedBundle Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package library

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"medbundle/internal/common"
)

// CopyTree copies the directory tree at src into dst. dst must not exist.
// Symlinks are not followed; regular files and directories only, which is
// all a bundle may contain.
func CopyTree(src, dst string, role common.PathRole) error {
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyOneFile(path, target)
	})
	if err != nil {
		return common.NewFSError("copy", role, dst, err)
	}
	return nil
}

// Move renames src to dst as a single filesystem operation. Both paths are
// expected to live on the same volume; a cross-device rename surfaces as a
// filesystem error rather than degrading to copy-and-delete.
func Move(src, dst string, role common.PathRole) error {
	if err := os.Rename(src, dst); err != nil {
		return common.NewFSError("move", role, dst, err)
	}
	return nil
}

// RemoveTree deletes the directory tree at path.
func RemoveTree(path string, role common.PathRole) error {
	if err := os.RemoveAll(path); err != nil {
		return common.NewFSError("remove", role, path, err)
	}
	return nil
}

func copyOneFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
