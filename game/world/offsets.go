package world

// Entity layout.
const (
	OffObjectType     uint32 = 0x14
	OffDescriptorPtr  uint32 = 0x08
	OffUnitPosY       uint32 = 0x798
	OffUnitPosX       uint32 = 0x79C
	OffUnitPosZ       uint32 = 0x7A0
	OffUnitFacing     uint32 = 0x7A8
	OffCastSpellID    uint32 = 0xA6C
	OffCastEndMs      uint32 = 0xA7C
	OffChannelSpellID uint32 = 0xA80
	OffChannelEndMs   uint32 = 0xA88
	OffMovementPtr    uint32 = 0xD8
	OffMovementFlags  uint32 = 0x44 // relative to the movement component

	OffHighestThreatGUID uint32 = 0xFD8
	OffTopThreatEntryPtr uint32 = 0xFEC
	OffThreatTargetGUID  uint32 = 0x20 // relative to a threat entry
	OffThreatStatus      uint32 = 0x28
	OffThreatPercent     uint32 = 0x29
	OffThreatRawValue    uint32 = 0x2C

	OffGameObjectPosX    uint32 = 0xE8
	OffGameObjectPosY    uint32 = 0xEC
	OffGameObjectPosZ    uint32 = 0xF0
	OffGameObjectBobbing uint32 = 0xBC

	OffManagerLocalGUID uint32 = 0xC0 // relative to the manager handle
)

// Descriptor layout, relative to the pointer stored at OffDescriptorPtr.
const (
	DescTargetGUID      uint32 = 0x48
	DescHealth          uint32 = 0x18 * 4
	DescPowerBase       uint32 = 0x19 * 4
	DescMaxHealth       uint32 = 0x20 * 4
	DescMaxPowerBase    uint32 = 0x21 * 4
	DescFactionTemplate uint32 = 0x30 * 4
	DescLevel           uint32 = 0x36 * 4
	DescBytes0          uint32 = 0x38 * 4
	DescUnitFlags       uint32 = 0x3B * 4
	DescPowerType       uint32 = 0x47
)

// Aura table layout.
const (
	OffAuraCount         uint32 = 0xDD0
	OffAuraTableInline   uint32 = 0xC50
	OffAuraCountOverflow uint32 = 0xC54
	OffAuraTableOverflow uint32 = 0xC58
	AuraCountUnset       uint32 = 0xFFFFFFFF
	AuraEntrySize        uint32 = 0x18
	AuraEntryCaster      uint32 = 0x00
	AuraEntrySpellID     uint32 = 0x08
	AuraEntryFlags       uint32 = 0x0C
	AuraEntryLevel       uint32 = 0x0D
	AuraEntryStacks      uint32 = 0x0E
	AuraEntryDuration    uint32 = 0x10
	AuraEntryExpire      uint32 = 0x14
	AuraMaxEntries       uint32 = 256
)

// Absolute addresses of process globals, read through Handle 0.
const (
	GlobalComboPoints     uint32 = 0x00BD084D
	GlobalComboTargetGUID uint32 = 0x00BD08A8
	GlobalCurrentTarget   uint32 = 0x00BD07B0
	GlobalWorldLoaded     uint32 = 0x00BEBA40
	GlobalLoadingCode     uint32 = 0x00B6AA38
	GlobalGameStateString uint32 = 0x00B6A9E0
	GlobalTimestampMs     uint32 = 0x00B1D618
)
