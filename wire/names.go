package wire

// Action names the operation a report asks the parent to perform.
type Action string

// Lifecycle
const (
	ActionInit               Action = "init"
	ActionReady              Action = "ready"
	ActionUpdateRequirements Action = "updateRequirements"
)

// Correlated requests
const (
	ActionExecuteGraphQL            Action = "executeGraphQL"
	ActionGetProjections            Action = "getProjections"
	ActionGetAllFactSheets          Action = "getAllFactSheets"
	ActionGetMetricsMeasurements    Action = "getMetricsMeasurements"
	ActionGetMetricsRawSeries       Action = "getMetricsRawSeries"
	ActionExecuteParentOriginXHR    Action = "executeParentOriginXHR"
	ActionRequestFactSheetSelection Action = "requestFactSheetSelection"
	ActionOpenFormModal             Action = "openFormModal"
	ActionHasPermission             Action = "hasPermission"
	ActionIsFeatureEnabled          Action = "isFeatureEnabled"
)

// Fire-and-forget
const (
	ActionPublishState           Action = "publishState"
	ActionOpenLink               Action = "openLink"
	ActionOpenRouterLink         Action = "openRouterLink"
	ActionNavigateToInventory    Action = "navigateToInventory"
	ActionShowSpinner            Action = "showSpinner"
	ActionHideSpinner            Action = "hideSpinner"
	ActionShowLegend             Action = "showLegend"
	ActionShowToastr             Action = "showToastr"
	ActionTrackReportEvent       Action = "trackReportEvent"
	ActionOpenSidePane           Action = "openSidePane"
	ActionOpenReportInNewTab     Action = "openReportInNewTab"
	ActionSendExcludedFactSheets Action = "sendExcludedFactSheets"
	ActionUpdateTableConfig      Action = "updateTableConfig"
	ActionShowEditToggle         Action = "showEditToggle"
	ActionHideEditToggle         Action = "hideEditToggle"
	ActionShowTablePopover       Action = "showTablePopover"
	ActionHideTablePopover       Action = "hideTablePopover"
	ActionSetFacetsConfig        Action = "setFacetsConfig"
)

// Replies to parent-initiated channel events
const (
	ActionUpdateUI        Action = "updateUI"
	ActionExportData      Action = "exportData"
	ActionUpdateFormModal Action = "updateFormModal"
)

// Channel is a well-known id the parent uses for broadcast events.
type Channel string

const (
	ChannelSetup                   Channel = "setup"
	ChannelFacetsResult            Channel = "facetsResult"
	ChannelFacetsSelectionUpdate   Channel = "facetsSelectionUpdate"
	ChannelUISelectionUpdate       Channel = "uiSelectionUpdate"
	ChannelUIButtonClick           Channel = "uiButtonClick"
	ChannelExportDataRequest       Channel = "exportDataRequest"
	ChannelTableConfigRequest      Channel = "tableConfigRequest"
	ChannelCustomDropdownSelection Channel = "customDropdownSelection"
	ChannelFormModalUpdate         Channel = "formModalUpdate"
	ChannelSidePaneFieldUpdate     Channel = "sidePaneFieldUpdate"
	ChannelSidePaneClick           Channel = "sidePaneClick"
	ChannelSidePaneClose           Channel = "sidePaneClose"
	ChannelDOMEvent                Channel = "domEvent"
	ChannelErrorEvent              Channel = "errorEvent"
	ChannelReportView              Channel = "reportView"
	ChannelToggleEditing           Channel = "toggleEditing"
	ChannelConfigure               Channel = "configure"
)

// Channels lists every well-known channel.
var Channels = []Channel{
	ChannelSetup,
	ChannelFacetsResult,
	ChannelFacetsSelectionUpdate,
	ChannelUISelectionUpdate,
	ChannelUIButtonClick,
	ChannelExportDataRequest,
	ChannelTableConfigRequest,
	ChannelCustomDropdownSelection,
	ChannelFormModalUpdate,
	ChannelSidePaneFieldUpdate,
	ChannelSidePaneClick,
	ChannelSidePaneClose,
	ChannelDOMEvent,
	ChannelErrorEvent,
	ChannelReportView,
	ChannelToggleEditing,
	ChannelConfigure,
}

// ID returns the wire id for the channel.
func (c Channel) ID() string {
	return string(c)
}
