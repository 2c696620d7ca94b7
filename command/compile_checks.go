package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateContainerMessage]       = (*CreateContainerCommand)(nil)
	_ gocmd.Commander[DeleteContainerMessage]       = (*DeleteContainerCommand)(nil)
	_ gocmd.Commander[UploadItemMessage]            = (*UploadItemCommand)(nil)
	_ gocmd.Commander[DeleteItemMessage]            = (*DeleteItemCommand)(nil)
	_ gocmd.Commander[InvalidatePermissionsMessage] = (*InvalidatePermissionsCommand)(nil)
)
