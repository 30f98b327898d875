package pys

// Every literal the remote form depends on lives in this file.

const DefaultFormUrl = "http://pys.sat.gob.mx/PyS/catPyS.aspx"

const (
	FormId = "form1"

	FieldEventTarget   = "__EVENTTARGET"
	FieldAsyncPost     = "__ASYNCPOST"
	FieldViewState     = "__VIEWSTATE"
	FieldScriptManager = "myScript"

	SelectType    = "cmbTipo"
	SelectSegment = "cmbSegmento"
	SelectFamily  = "cmbFamilia"
	SelectClass   = "cmbClase"

	ScriptType    = "pnlTipo|cmbTipo"
	ScriptSegment = "pnlSegmento|cmbSegmento"
	ScriptFamily  = "pnlFamilia|cmbFamilia"

	// PlaceholderKey is the value of the "select an option" entry of every select.
	PlaceholderKey = "0"

	AsyncPostValue = "false"

	HeaderReferer       = "Referer"
	HeaderRequestedWith = "X-Requested-With"
	HeaderMicrosoftAjax = "X-Microsoft-Ajax"
	RequestedWithValue  = "XMLHttpRequest"
	MicrosoftAjaxValue  = "delta=false"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// cascadeLevel describes one step down the selector cascade: the select
// whose change is simulated, the script manager value sent with it and the
// select that gets populated in the response.
type cascadeLevel struct {
	eventTarget string
	script      string
	child       string
}

var cascadeLevels = []cascadeLevel{
	{eventTarget: SelectType, script: ScriptType, child: SelectSegment},
	{eventTarget: SelectSegment, script: ScriptSegment, child: SelectFamily},
	{eventTarget: SelectFamily, script: ScriptFamily, child: SelectClass},
}
