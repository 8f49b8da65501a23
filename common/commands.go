package common

// CommandKind is a command the driver implements.
type CommandKind int

// Commands.
const (
	CmdGetMarionetteID CommandKind = iota
	CmdSayHello
	CmdNewSession
	CmdGetSessionCapabilities
	CmdLog
	CmdGetLogs
	CmdSetContext
	CmdGetContext
	CmdSetTestName
	CmdDeleteSession
	CmdQuitApplication

	CmdExecuteScript
	CmdExecuteAsyncScript
	CmdExecuteJSScript
	CmdSetScriptTimeout
	CmdSetSearchTimeout
	CmdTimeouts
	CmdImportScript
	CmdClearImportedScripts
	CmdEmulatorCmdResult

	CmdGet
	CmdGetCurrentURL
	CmdGetTitle
	CmdGetWindowType
	CmdGetPageSource
	CmdGoBack
	CmdGoForward
	CmdRefresh
	CmdGetWindowHandle
	CmdGetWindowHandles
	CmdGetWindowPosition
	CmdSetWindowPosition
	CmdGetWindowSize
	CmdSetWindowSize
	CmdMaximizeWindow
	CmdSwitchToWindow
	CmdClose
	CmdCloseChromeWindow
	CmdGetActiveFrame
	CmdSwitchToFrame
	CmdTakeScreenshot
	CmdGetScreenOrientation
	CmdSetScreenOrientation
	CmdGetAppCacheStatus

	CmdFindElement
	CmdFindElements
	CmdFindChildElement
	CmdFindChildElements
	CmdGetActiveElement
	CmdClickElement
	CmdSingleTap
	CmdActionChain
	CmdMultiAction
	CmdGetElementAttribute
	CmdGetElementText
	CmdGetElementTagName
	CmdIsElementDisplayed
	CmdGetElementValueOfCSSProperty
	CmdSubmitElement
	CmdGetElementSize
	CmdGetElementRect
	CmdGetElementLocation
	CmdIsElementEnabled
	CmdIsElementSelected
	CmdSendKeysToElement
	CmdClearElement

	CmdAddCookie
	CmdGetCookies
	CmdDeleteCookie
	CmdDeleteAllCookies

	cmdCount
)

//nolint:gochecknoglobals
var commandNames = [cmdCount]string{
	CmdGetMarionetteID:        "getMarionetteID",
	CmdSayHello:               "sayHello",
	CmdNewSession:             "newSession",
	CmdGetSessionCapabilities: "getSessionCapabilities",
	CmdLog:                    "log",
	CmdGetLogs:                "getLogs",
	CmdSetContext:             "setContext",
	CmdGetContext:             "getContext",
	CmdSetTestName:            "setTestName",
	CmdDeleteSession:          "deleteSession",
	CmdQuitApplication:        "quitApplication",

	CmdExecuteScript:        "executeScript",
	CmdExecuteAsyncScript:   "executeAsyncScript",
	CmdExecuteJSScript:      "executeJSScript",
	CmdSetScriptTimeout:     "setScriptTimeout",
	CmdSetSearchTimeout:     "setSearchTimeout",
	CmdTimeouts:             "timeouts",
	CmdImportScript:         "importScript",
	CmdClearImportedScripts: "clearImportedScripts",
	CmdEmulatorCmdResult:    "emulatorCmdResult",

	CmdGet:                  "get",
	CmdGetCurrentURL:        "getCurrentUrl",
	CmdGetTitle:             "getTitle",
	CmdGetWindowType:        "getWindowType",
	CmdGetPageSource:        "getPageSource",
	CmdGoBack:               "goBack",
	CmdGoForward:            "goForward",
	CmdRefresh:              "refresh",
	CmdGetWindowHandle:      "getWindowHandle",
	CmdGetWindowHandles:     "getWindowHandles",
	CmdGetWindowPosition:    "getWindowPosition",
	CmdSetWindowPosition:    "setWindowPosition",
	CmdGetWindowSize:        "getWindowSize",
	CmdSetWindowSize:        "setWindowSize",
	CmdMaximizeWindow:       "maximizeWindow",
	CmdSwitchToWindow:       "switchToWindow",
	CmdClose:                "close",
	CmdCloseChromeWindow:    "closeChromeWindow",
	CmdGetActiveFrame:       "getActiveFrame",
	CmdSwitchToFrame:        "switchToFrame",
	CmdTakeScreenshot:       "takeScreenshot",
	CmdGetScreenOrientation: "getScreenOrientation",
	CmdSetScreenOrientation: "setScreenOrientation",
	CmdGetAppCacheStatus:    "getAppCacheStatus",

	CmdFindElement:                  "findElement",
	CmdFindElements:                 "findElements",
	CmdFindChildElement:             "findChildElement",
	CmdFindChildElements:            "findChildElements",
	CmdGetActiveElement:             "getActiveElement",
	CmdClickElement:                 "clickElement",
	CmdSingleTap:                    "singleTap",
	CmdActionChain:                  "actionChain",
	CmdMultiAction:                  "multiAction",
	CmdGetElementAttribute:          "getElementAttribute",
	CmdGetElementText:               "getElementText",
	CmdGetElementTagName:            "getElementTagName",
	CmdIsElementDisplayed:           "isElementDisplayed",
	CmdGetElementValueOfCSSProperty: "getElementValueOfCssProperty",
	CmdSubmitElement:                "submitElement",
	CmdGetElementSize:               "getElementSize",
	CmdGetElementRect:               "getElementRect",
	CmdGetElementLocation:           "getElementLocation",
	CmdIsElementEnabled:             "isElementEnabled",
	CmdIsElementSelected:            "isElementSelected",
	CmdSendKeysToElement:            "sendKeysToElement",
	CmdClearElement:                 "clearElement",

	CmdAddCookie:        "addCookie",
	CmdGetCookies:       "getCookies",
	CmdDeleteCookie:     "deleteCookie",
	CmdDeleteAllCookies: "deleteAllCookies",
}

// Deprecated and Selenium 2 names of commands.
//
//nolint:gochecknoglobals
var commandAliases = map[string]CommandKind{
	"goUrl":                   CmdGet,
	"getUrl":                  CmdGetCurrentURL,
	"getCurrentWindowHandle":  CmdGetWindowHandle,
	"getWindow":               CmdGetWindowHandle,
	"getCurrentWindowHandles": CmdGetWindowHandles,
	"getWindows":              CmdGetWindowHandles,
	"closeWindow":             CmdClose,
	"screenShot":              CmdTakeScreenshot,
	"screenshot":              CmdTakeScreenshot,
	"getAllCookies":           CmdGetCookies,
	"getElementPosition":      CmdGetElementLocation,
}

//nolint:gochecknoglobals
var commandsByName = func() map[string]CommandKind {
	m := make(map[string]CommandKind, int(cmdCount)+len(commandAliases))
	for k := CommandKind(0); k < cmdCount; k++ {
		m[commandNames[k]] = k
	}
	for name, k := range commandAliases {
		m[name] = k
	}
	return m
}()

// ResolveCommand returns the command named name, accepting aliases.
func ResolveCommand(name string) (CommandKind, bool) {
	k, ok := commandsByName[name]
	return k, ok
}

// CommandNames returns the canonical command names.
func CommandNames() []string {
	return append([]string(nil), commandNames[:]...)
}

func (k CommandKind) String() string {
	if k < 0 || k >= cmdCount {
		return "unknown"
	}
	return commandNames[k]
}

// ContentOnly reports whether the command is only available in content
// context.
func (k CommandKind) ContentOnly() bool {
	switch k { //nolint:exhaustive
	case CmdSubmitElement, CmdSingleTap, CmdActionChain, CmdMultiAction,
		CmdAddCookie, CmdGetCookies, CmdDeleteCookie, CmdDeleteAllCookies,
		CmdGetElementValueOfCSSProperty, CmdGetAppCacheStatus,
		CmdGoBack, CmdGoForward, CmdRefresh:
		return true
	}
	return false
}
