package i18n

import (
	"ScheduledRecorder/pkg/errors"
	"ScheduledRecorder/pkg/logger"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Translator 按 Accept-Language 翻译错误码对应的提示
type Translator struct {
	bundle *i18n.Bundle
}

var builtin = map[language.Tag]map[int]string{
	language.English: {
		errors.CodeNotFound:         "The item no longer exists.",
		errors.CodeAlreadyScheduled: "A recording is already scheduled in this window.",
		errors.CodeTimeInPast:       "The start time is in the past.",
		errors.CodeStartAfterEnd:    "The start time is after the end time.",
		errors.CodeSaveFailed:       "The scheduled recording could not be saved.",
		errors.CodeAlreadyRecording: "A recording is already in progress.",
		errors.CodeNotRecording:     "No recording is in progress.",
		errors.CodeCaptureFailed:    "The recording could not be started.",
		errors.CodeFileConflict:     "A recording with this name already exists.",
		errors.CodeFileOperation:    "The recording file could not be changed.",
		errors.CodeServiceClosed:    "The service is shutting down.",
	},
	language.Chinese: {
		errors.CodeNotFound:         "记录不存在。",
		errors.CodeAlreadyScheduled: "该时段已有定时录音。",
		errors.CodeTimeInPast:       "开始时间已过。",
		errors.CodeStartAfterEnd:    "开始时间晚于结束时间。",
		errors.CodeSaveFailed:       "定时录音保存失败。",
		errors.CodeAlreadyRecording: "正在录音中。",
		errors.CodeNotRecording:     "当前没有录音。",
		errors.CodeCaptureFailed:    "无法开始录音。",
		errors.CodeFileConflict:     "已存在同名录音。",
		errors.CodeFileOperation:    "录音文件操作失败。",
		errors.CodeServiceClosed:    "服务正在关闭。",
	},
}

func messageID(code int) string { return "error." + strconv.Itoa(code) }

// NewTranslator 创建翻译器，内置中英文错误提示
func NewTranslator(defaultLang string) (*Translator, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, err
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	for lang, msgs := range builtin {
		list := make([]*i18n.Message, 0, len(msgs))
		for code, text := range msgs {
			list = append(list, &i18n.Message{ID: messageID(code), Other: text})
		}
		if err := bundle.AddMessages(lang, list...); err != nil {
			return nil, err
		}
	}
	return &Translator{bundle: bundle}, nil
}

// LoadDir 加载目录下的 *.json 语言文件（文件名即语言，如 ja.json），可覆盖内置文案
func (t *Translator) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, err := t.bundle.LoadMessageFile(f); err != nil {
			logger.Warn("load message file failed", zap.String("file", f), zap.Error(err))
			continue
		}
	}
	if len(files) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return err
		}
	}
	return nil
}

// ErrorMessage 返回错误码在首选语言下的文案；未知错误码返回 false
func (t *Translator) ErrorMessage(acceptLanguage string, code int) (string, bool) {
	if code == 0 {
		return "", false
	}
	localizer := i18n.NewLocalizer(t.bundle, acceptLanguage)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: messageID(code)})
	if err != nil {
		logger.Debug("no translation", zap.Int("code", code), zap.String("lang", acceptLanguage), zap.Error(err))
		return "", false
	}
	return msg, true
}
