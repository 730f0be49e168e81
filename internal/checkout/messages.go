package checkout

import (
	"strings"

	"storefront-be/internal/product"
)

type messageKey int

const (
	msgGeneric messageKey = iota
	msgValidation
	msgStoreNotFound
	msgProviderNotConfigured
	msgCouponInvalid
	msgOutOfStock
	msgInactive
	msgInsufficient
	msgInvalidAmount
	msgPaymentInit
	msgDuplicate
	msgReference
	msgTimeout
)

var messages = map[string]map[messageKey]string{
	"he": {
		msgGeneric:               "אירעה שגיאה בעת יצירת ההזמנה. נסו שוב.",
		msgValidation:            "חסרים פרטים נדרשים להשלמת ההזמנה",
		msgStoreNotFound:         "החנות לא נמצאה",
		msgProviderNotConfigured: "לא הוגדר ספק תשלום לחנות זו",
		msgCouponInvalid:         "קוד הקופון אינו בתוקף יותר",
		msgOutOfStock:            "חלק מהמוצרים אזלו מהמלאי",
		msgInactive:              "חלק מהמוצרים אינם זמינים יותר",
		msgInsufficient:          "אין מספיק מלאי עבור חלק מהמוצרים",
		msgInvalidAmount:         "סכום ההזמנה אינו תקין",
		msgPaymentInit:           "לא ניתן היה ליצור את דף התשלום. נסו שוב.",
		msgDuplicate:             "ההזמנה כבר קיימת. רעננו את הדף ונסו שוב.",
		msgReference:             "אחד מהפריטים בעגלה אינו קיים יותר",
		msgTimeout:               "הפעולה ארכה זמן רב מדי. נסו שוב.",
	},
	"en": {
		msgGeneric:               "Something went wrong while creating your order. Please try again.",
		msgValidation:            "Required checkout details are missing",
		msgStoreNotFound:         "Store not found",
		msgProviderNotConfigured: "No payment provider is configured for this store",
		msgCouponInvalid:         "This coupon code is no longer valid",
		msgOutOfStock:            "Some items are out of stock",
		msgInactive:              "Some items are no longer available",
		msgInsufficient:          "Not enough stock for some items",
		msgInvalidAmount:         "The order amount is invalid",
		msgPaymentInit:           "We could not open the payment page. Please try again.",
		msgDuplicate:             "This order already exists. Refresh the page and try again.",
		msgReference:             "An item in your cart no longer exists",
		msgTimeout:               "The request took too long. Please try again.",
	},
}

// normalizeLocale maps "he-IL", "EN_us" etc. onto a supported language,
// falling back to fallback and then to English.
func normalizeLocale(locale, fallback string) string {
	for _, l := range []string{locale, fallback} {
		l = strings.ToLower(strings.TrimSpace(l))
		if i := strings.IndexAny(l, "-_"); i > 0 {
			l = l[:i]
		}
		if _, ok := messages[l]; ok {
			return l
		}
	}
	return "en"
}

func message(locale string, key messageKey) string {
	if m, ok := messages[locale][key]; ok {
		return m
	}
	return messages["en"][key]
}

// inventoryMessage builds one consolidated message for every violation
// class present, joining the lines that apply.
func inventoryMessage(locale string, a *product.Availability) string {
	var parts []string
	add := func(key messageKey, issues []product.StockIssue) {
		if len(issues) == 0 {
			return
		}
		names := make([]string, len(issues))
		for i, is := range issues {
			names[i] = is.Name
		}
		parts = append(parts, message(locale, key)+": "+strings.Join(names, ", "))
	}
	add(msgOutOfStock, a.OutOfStock)
	add(msgInsufficient, a.Insufficient)
	add(msgInactive, a.Inactive)
	return strings.Join(parts, ". ")
}
