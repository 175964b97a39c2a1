// Package e2e provides end-to-end tests with a formula corpus and multiple queries.
package e2e

import (
	"fmt"
	"strings"
)

// Formula is a document entry in the E2E corpus.
type Formula struct {
	ID         string
	Name       string
	Source     string
	Herbs      []string
	Effect     string
	Indication string
}

// Content returns the document body describing f.
func (f Formula) Content() string {
	return fmt.Sprintf("%s出自《%s》。组成：%s。功用：%s。主治：%s。",
		f.Name, f.Source, strings.Join(f.Herbs, "、"), f.Effect, f.Indication)
}

// QueryTestCase defines a query and the document ID that must appear in search results.
type QueryTestCase struct {
	Query         string
	ExpectedDocID string
	Description   string
}

// Corpus holds documents and query test cases for E2E tests.
type Corpus struct {
	Documents    []Formula
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

// BuildCorpus returns the formula corpus. Every formula name is a query whose
// only matching document is the formula itself; effects that are unique to one
// formula are queries too.
func BuildCorpus() *Corpus {
	docs := buildDocuments()
	cases := buildQueryTestCases(docs)
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

func buildDocuments() []Formula {
	formulas := []Formula{
		{Name: "桂枝汤", Source: "伤寒论", Herbs: []string{"桂枝", "芍药", "甘草", "生姜", "大枣"}, Effect: "解肌发表，调和营卫", Indication: "外感风寒表虚证"},
		{Name: "麻黄汤", Source: "伤寒论", Herbs: []string{"麻黄", "桂枝", "杏仁", "甘草"}, Effect: "发汗解表，宣肺平喘", Indication: "外感风寒表实证"},
		{Name: "小青龙汤", Source: "伤寒论", Herbs: []string{"麻黄", "芍药", "细辛", "干姜", "甘草", "桂枝", "五味子", "半夏"}, Effect: "解表散寒，温肺化饮", Indication: "外寒内饮证"},
		{Name: "大承气汤", Source: "伤寒论", Herbs: []string{"大黄", "厚朴", "枳实", "芒硝"}, Effect: "峻下热结", Indication: "阳明腑实证"},
		{Name: "小柴胡汤", Source: "伤寒论", Herbs: []string{"柴胡", "黄芩", "人参", "半夏", "甘草", "生姜", "大枣"}, Effect: "和解少阳", Indication: "伤寒少阳证"},
		{Name: "白虎汤", Source: "伤寒论", Herbs: []string{"石膏", "知母", "甘草", "粳米"}, Effect: "清热生津", Indication: "气分热盛证"},
		{Name: "理中丸", Source: "伤寒论", Herbs: []string{"人参", "干姜", "甘草", "白术"}, Effect: "温中祛寒，补气健脾", Indication: "脾胃虚寒证"},
		{Name: "四逆汤", Source: "伤寒论", Herbs: []string{"附子", "干姜", "甘草"}, Effect: "回阳救逆", Indication: "心肾阳衰寒厥证"},
		{Name: "五苓散", Source: "伤寒论", Herbs: []string{"猪苓", "泽泻", "白术", "茯苓", "桂枝"}, Effect: "利水渗湿，温阳化气", Indication: "膀胱蓄水证"},
		{Name: "半夏泻心汤", Source: "伤寒论", Herbs: []string{"半夏", "黄芩", "干姜", "人参", "黄连", "大枣", "甘草"}, Effect: "寒热平调，消痞散结", Indication: "寒热互结之痞证"},
		{Name: "麻子仁丸", Source: "伤寒论", Herbs: []string{"麻子仁", "芍药", "枳实", "大黄", "厚朴", "杏仁"}, Effect: "润肠泄热，行气通便", Indication: "脾约证"},
		{Name: "炙甘草汤", Source: "伤寒论", Herbs: []string{"炙甘草", "生姜", "桂枝", "人参", "生地黄", "阿胶", "麦门冬", "麻仁", "大枣"}, Effect: "益气滋阴，通阳复脉", Indication: "脉结代，心动悸"},
		{Name: "肾气丸", Source: "金匮要略", Herbs: []string{"干地黄", "山药", "山茱萸", "泽泻", "茯苓", "牡丹皮", "桂枝", "附子"}, Effect: "补肾助阳", Indication: "肾阳不足证"},
		{Name: "六味地黄丸", Source: "小儿药证直诀", Herbs: []string{"熟地黄", "山茱萸", "山药", "泽泻", "牡丹皮", "茯苓"}, Effect: "滋补肝肾", Indication: "肝肾阴虚证"},
		{Name: "四君子汤", Source: "太平惠民和剂局方", Herbs: []string{"人参", "白术", "茯苓", "甘草"}, Effect: "益气健脾", Indication: "脾胃气虚证"},
		{Name: "四物汤", Source: "太平惠民和剂局方", Herbs: []string{"当归", "川芎", "白芍", "熟地黄"}, Effect: "补血调血", Indication: "营血虚滞证"},
		{Name: "八珍汤", Source: "正体类要", Herbs: []string{"人参", "白术", "茯苓", "甘草", "当归", "川芎", "白芍", "熟地黄"}, Effect: "益气补血", Indication: "气血两虚证"},
		{Name: "补中益气汤", Source: "脾胃论", Herbs: []string{"黄芪", "甘草", "人参", "当归", "橘皮", "升麻", "柴胡", "白术"}, Effect: "补中益气，升阳举陷", Indication: "脾虚气陷证"},
		{Name: "归脾汤", Source: "济生方", Herbs: []string{"白术", "茯神", "黄芪", "龙眼肉", "酸枣仁", "人参", "木香", "甘草", "当归", "远志"}, Effect: "益气补血，健脾养心", Indication: "心脾气血两虚证"},
		{Name: "逍遥散", Source: "太平惠民和剂局方", Herbs: []string{"柴胡", "当归", "白芍", "白术", "茯苓", "甘草"}, Effect: "疏肝解郁，养血健脾", Indication: "肝郁血虚脾弱证"},
		{Name: "银翘散", Source: "温病条辨", Herbs: []string{"连翘", "银花", "桔梗", "薄荷", "竹叶", "甘草", "荆芥穗", "淡豆豉", "牛蒡子"}, Effect: "辛凉透表，清热解毒", Indication: "温病初起"},
		{Name: "桑菊饮", Source: "温病条辨", Herbs: []string{"桑叶", "菊花", "杏仁", "连翘", "薄荷", "桔梗", "甘草", "苇根"}, Effect: "疏风清热，宣肺止咳", Indication: "风温初起"},
		{Name: "藿香正气散", Source: "太平惠民和剂局方", Herbs: []string{"大腹皮", "白芷", "紫苏", "茯苓", "半夏曲", "白术", "陈皮", "厚朴", "桔梗", "藿香", "甘草"}, Effect: "解表化湿，理气和中", Indication: "外感风寒，内伤湿滞证"},
		{Name: "二陈汤", Source: "太平惠民和剂局方", Herbs: []string{"半夏", "橘红", "白茯苓", "甘草"}, Effect: "燥湿化痰，理气和中", Indication: "湿痰证"},
		{Name: "温胆汤", Source: "三因极一病证方论", Herbs: []string{"半夏", "竹茹", "枳实", "陈皮", "甘草", "茯苓"}, Effect: "理气化痰，和胃利胆", Indication: "胆郁痰扰证"},
		{Name: "血府逐瘀汤", Source: "医林改错", Herbs: []string{"桃仁", "红花", "当归", "生地黄", "川芎", "赤芍", "牛膝", "桔梗", "柴胡", "枳壳", "甘草"}, Effect: "活血化瘀，行气止痛", Indication: "胸中血瘀证"},
		{Name: "补阳还五汤", Source: "医林改错", Herbs: []string{"黄芪", "当归尾", "赤芍", "地龙", "川芎", "红花", "桃仁"}, Effect: "补气活血通络", Indication: "中风之气虚血瘀证"},
		{Name: "天王补心丹", Source: "校注妇人良方", Herbs: []string{"人参", "茯苓", "玄参", "丹参", "桔梗", "远志", "当归", "五味子", "麦冬", "天冬", "柏子仁", "酸枣仁", "生地黄"}, Effect: "滋阴清热，养血安神", Indication: "阴虚血少，神志不安证"},
		{Name: "酸枣仁汤", Source: "金匮要略", Herbs: []string{"酸枣仁", "甘草", "知母", "茯苓", "川芎"}, Effect: "养血安神，清热除烦", Indication: "肝血不足，虚热内扰证"},
		{Name: "龙胆泻肝汤", Source: "医方集解", Herbs: []string{"龙胆草", "黄芩", "栀子", "泽泻", "木通", "车前子", "当归", "生地黄", "柴胡", "生甘草"}, Effect: "清泻肝胆实火，清利肝经湿热", Indication: "肝胆实火上炎证"},
		{Name: "黄连解毒汤", Source: "外台秘要", Herbs: []string{"黄连", "黄芩", "黄柏", "栀子"}, Effect: "泻火解毒", Indication: "三焦火毒证"},
		{Name: "清营汤", Source: "温病条辨", Herbs: []string{"水牛角", "生地黄", "元参", "竹叶心", "麦冬", "丹参", "黄连", "银花", "连翘"}, Effect: "清营解毒，透热养阴", Indication: "热入营分证"},
		{Name: "玉屏风散", Source: "医方类聚", Herbs: []string{"防风", "黄芪", "白术"}, Effect: "益气固表止汗", Indication: "表虚自汗"},
		{Name: "独活寄生汤", Source: "备急千金要方", Herbs: []string{"独活", "桑寄生", "杜仲", "牛膝", "细辛", "秦艽", "茯苓", "肉桂心", "防风", "川芎", "人参", "甘草", "当归", "芍药", "干地黄"}, Effect: "祛风湿，止痹痛，益肝肾，补气血", Indication: "痹证日久，肝肾两虚"},
		{Name: "川芎茶调散", Source: "太平惠民和剂局方", Herbs: []string{"川芎", "荆芥", "白芷", "羌活", "甘草", "细辛", "防风", "薄荷"}, Effect: "疏风止痛", Indication: "外感风邪头痛"},
		{Name: "羚角钩藤汤", Source: "通俗伤寒论", Herbs: []string{"羚角片", "霜桑叶", "京川贝", "鲜生地", "双钩藤", "滁菊花", "茯神木", "生白芍", "生甘草", "淡竹茹"}, Effect: "凉肝息风，增液舒筋", Indication: "热盛动风证"},
		{Name: "镇肝熄风汤", Source: "医学衷中参西录", Herbs: []string{"怀牛膝", "生赭石", "生龙骨", "生牡蛎", "生龟板", "生杭芍", "玄参", "天冬", "川楝子", "生麦芽", "茵陈", "甘草"}, Effect: "镇肝息风，滋阴潜阳", Indication: "类中风"},
		{Name: "生化汤", Source: "傅青主女科", Herbs: []string{"全当归", "川芎", "桃仁", "干姜", "甘草"}, Effect: "养血祛瘀，温经止痛", Indication: "血虚寒凝，瘀血阻滞证"},
		{Name: "平胃散", Source: "简要济众方", Herbs: []string{"苍术", "厚朴", "陈皮", "甘草"}, Effect: "燥湿运脾，行气和胃", Indication: "湿滞脾胃证"},
		{Name: "保和丸", Source: "丹溪心法", Herbs: []string{"山楂", "神曲", "半夏", "茯苓", "陈皮", "连翘", "莱菔子"}, Effect: "消食和胃", Indication: "食积证"},
	}
	for i := range formulas {
		formulas[i].ID = fmt.Sprintf("e2e-formula-%03d", i+1)
	}
	return formulas
}

func buildQueryTestCases(docs []Formula) []QueryTestCase {
	var cases []QueryTestCase
	for _, d := range docs {
		if ids := matchingDocs(docs, d.Name); len(ids) == 1 {
			cases = append(cases, QueryTestCase{
				Query:         d.Name,
				ExpectedDocID: d.ID,
				Description:   fmt.Sprintf("name %s", d.Name),
			})
		}
	}
	for _, d := range docs {
		if ids := matchingDocs(docs, d.Effect); len(ids) == 1 {
			cases = append(cases, QueryTestCase{
				Query:         d.Effect,
				ExpectedDocID: d.ID,
				Description:   fmt.Sprintf("effect of %s", d.Name),
			})
		}
	}
	return cases
}

// matchingDocs returns the ids of documents whose name or content contains phrase.
func matchingDocs(docs []Formula, phrase string) []string {
	var ids []string
	for _, d := range docs {
		if containsPhrase(d, phrase) {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

func containsPhrase(d Formula, phrase string) bool {
	return strings.Contains(d.Name, phrase) || strings.Contains(d.Content(), phrase)
}
