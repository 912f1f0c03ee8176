package domain

// Label keys used by Alcove for container metadata.
const (
	LabelManaged = "alcove.managed"
	LabelAddonID = "alcove.addon.id"
	LabelOwner   = "alcove.addon.owner"
)

// ContainerNamePrefix prefixes every container Alcove provisions.
const ContainerNamePrefix = "alcove-addon-"
