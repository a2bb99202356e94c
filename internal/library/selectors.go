package library

// Content library page markup.
const (
	selAuthError      = "#auth-error-message-box"
	selEntityDetails  = ".digital_entity_details"
	selInformationRow = ".information_row"
	selAccountName    = `[data-test-id="customerName"]`
	selOTPCode        = "#auth-mfa-otpcode"
	selEmail          = "#ap_email"
	selPassword       = "#ap_password"
	selContinue       = "#continue"
	selSignIn         = "#signInSubmit"

	selEntity      = `div[class^="DigitalEntitySummary-module__container"]`
	selEntityTitle = ".digital_entity_title"

	selMoreActions      = `div[id="MORE_ACTION:false"]`
	selDownloadAction   = `div[id*="DOWNLOAD_AND_TRANSFER_ACTION"]`
	selDeviceList       = `ul[id*="download_and_transfer_list"]`
	selDownloadConfirm  = `div[id^="DOWNLOAD_AND_TRANSFER_ACTION_"][id$="_CONFIRM"]`
	selReturnLabel      = "span"
	selReturnConfirm    = `div[id^="RETURN_CONTENT_ACTION_"][id$="_CONFIRM"]`
	selNotificationDone = "#notification-close"

	returnLabelText = "Return this book"
)
