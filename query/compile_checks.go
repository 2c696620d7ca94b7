package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-docaccess/core"
)

var (
	_ gocmd.Querier[ListContainersMessage, []core.ResourceHandle]   = (*ListContainersQuery)(nil)
	_ gocmd.Querier[ListItemsMessage, *core.ListingPage]            = (*ListItemsQuery)(nil)
	_ gocmd.Querier[GetItemMessage, *core.ItemDescriptor]           = (*GetItemQuery)(nil)
	_ gocmd.Querier[ResolveIdentityMessage, *core.IdentitySnapshot] = (*ResolveIdentityQuery)(nil)
	_ gocmd.Querier[GetCapabilitiesMessage, core.CapabilitySet]     = (*GetCapabilitiesQuery)(nil)
)
