package models

// ResultCode is the outcome of an install or uninstall operation.
type ResultCode string

const (
	ResultSuccess                     ResultCode = "SUCCESS"
	ResultFailedToDownloadManifest    ResultCode = "FAILED_TO_DOWNLOAD_MANIFEST"
	ResultFailedToParseManifest       ResultCode = "FAILED_TO_PARSE_MANIFEST"
	ResultAlreadyInstalled            ResultCode = "ALREADY_INSTALLED"
	ResultFailedToDownloadAssembly    ResultCode = "FAILED_TO_DOWNLOAD_ASSEMBLY"
	ResultFailedToStoreAssembly       ResultCode = "FAILED_TO_STORE_ASSEMBLY"
	ResultFailedToInstallDependency   ResultCode = "FAILED_TO_INSTALL_DEPENDENCY"
	ResultFailedToFindDependency      ResultCode = "FAILED_TO_FIND_DEPENDENCY"
	ResultDependencyRequiredByAnother ResultCode = "DEPENDENCY_REQUIRED_BY_ANOTHER_PLUGIN"
	ResultFailedToDeleteAssembly      ResultCode = "FAILED_TO_DELETE_ASSEMBLY"
	ResultFailedToFindPlugin          ResultCode = "FAILED_TO_FIND_PLUGIN"
	ResultFailedToUninstallDependency ResultCode = "FAILED_TO_UNINSTALL_DEPENDENCY"
	ResultUnexpected                  ResultCode = "UNEXPECTED_EXCEPTION"
)

// Satisfied reports whether code counts as success for a dependency step.
func (c ResultCode) Satisfied() bool {
	return c == ResultSuccess || c == ResultAlreadyInstalled
}

// Action is the outcome of checking one plugin for updates.
type Action int

const (
	ActionNone Action = iota
	ActionRestartPending
	ActionUpdated
)

func (a Action) String() string {
	switch a {
	case ActionRestartPending:
		return "RESTART_PENDING"
	case ActionUpdated:
		return "UPDATED_AND_RESTART_NEEDED"
	default:
		return "NONE"
	}
}

// MarshalText encodes the action by name.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// FileKind says which live directory a file belongs to.
type FileKind int

const (
	KindPlugin FileKind = iota
	KindDependency
)

func (k FileKind) String() string {
	if k == KindDependency {
		return "dependency"
	}
	return "plugin"
}
