package utils

import "fmt"

// Server-side messages only; the questionnaire UI carries its own strings.
var translations = map[string]map[string]string{
	"en": {
		"health.ok":                "ok",
		"error.invalid":            "invalid request",
		"error.invalid_field":      "invalid field: %s",
		"error.not_found":          "not found",
		"error.forbidden":          "forbidden",
		"error.unauthorized":       "unauthorized",
		"error.conflict":           "conflict",
		"error.bad_gateway":        "upstream service failed",
		"error.internal":           "internal error",
		"error.method_not_allowed": "method not allowed",
		"error.already_submitted":  "today's questionnaire has already been submitted",
		"error.wrong_day":          "wrong test day, expected day %d",
		"error.test_ended":         "this test has ended",
	},
	"zh": {
		"health.ok":                "好的",
		"error.invalid":            "请求无效",
		"error.invalid_field":      "字段无效：%s",
		"error.not_found":          "未找到",
		"error.forbidden":          "无权访问",
		"error.unauthorized":       "未登录或登录已过期",
		"error.conflict":           "请求冲突",
		"error.bad_gateway":        "上游服务出错",
		"error.internal":           "服务器内部错误",
		"error.method_not_allowed": "不支持的请求方法",
		"error.already_submitted":  "今日问卷已提交",
		"error.wrong_day":          "测试天数不匹配，应提交第 %d 天",
		"error.test_ended":         "测试已结束",
	},
}

// T returns the message for key in locale, falling back to English and then
// to the key itself.
func T(locale, key string) string {
	if v, ok := translations[locale][key]; ok {
		return v
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}

// TF formats the translated message with args.
func TF(locale, key string, args ...any) string {
	return fmt.Sprintf(T(locale, key), args...)
}
