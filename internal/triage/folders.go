package triage

import "strings"

// FolderMapper maps taxonomy labels to folder names
type FolderMapper struct {
	folders       map[string]string
	defaultFolder string
}

// NewFolderMapper creates a mapper. Blank folder names are ignored and a blank
// default falls back to DefaultFolder.
func NewFolderMapper(folders map[string]string, defaultFolder string) *FolderMapper {
	defaultFolder = strings.TrimSpace(defaultFolder)
	if defaultFolder == "" {
		defaultFolder = DefaultFolder
	}

	mapped := make(map[string]string, len(folders))
	for label, folder := range folders {
		if folder = strings.TrimSpace(folder); folder != "" {
			mapped[labelKey(label)] = folder
		}
	}

	return &FolderMapper{folders: mapped, defaultFolder: defaultFolder}
}

// MapToFolder returns the folder for a label, or the default folder
func (m *FolderMapper) MapToFolder(label string) string {
	if folder, ok := m.folders[labelKey(label)]; ok {
		return folder
	}
	return m.defaultFolder
}

// DefaultFolder returns the catch-all folder name
func (m *FolderMapper) DefaultFolder() string {
	return m.defaultFolder
}
