package entity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bank is one institution the extractor recognizes
type Bank struct {
	// Code is the short code reported in results (e.g. KBNK)
	Code string `yaml:"code"`

	Name string `yaml:"name"`

	// Keywords are matched case-insensitively as substrings of a line
	Keywords []string `yaml:"keywords"`

	// Wallet marks e-wallet services, which raise a warning when seen
	Wallet bool `yaml:"wallet"`
}

// Table is the keyword knowledge the extractor works from
type Table struct {
	Banks            []Bank   `yaml:"banks"`
	NamePrefixes     []string `yaml:"name_prefixes"`
	NameMarkers      []string `yaml:"name_markers"`
	BusinessKeywords []string `yaml:"business_keywords"`
	SlipKeywords     []string `yaml:"slip_keywords"`
}

// DefaultTable returns the built-in Thai bank and slip keyword table
func DefaultTable() *Table {
	return &Table{
		Banks: []Bank{
			{Code: "KBNK", Name: "Kasikornbank", Keywords: []string{"kasikorn", "kbank", "กสิกร", "ก.ส.ก."}},
			{Code: "SCB", Name: "Siam Commercial Bank", Keywords: []string{"scb", "commercial", "ไทยพาณิชย์"}},
			{Code: "KTB", Name: "Krungthai Bank", Keywords: []string{"krungthai", "ktb", "กรุงไทย"}},
			{Code: "BBL", Name: "Bangkok Bank", Keywords: []string{"bangkok bank", "bbl", "กรุงเทพ"}},
			{Code: "GSB", Name: "Government Savings Bank", Keywords: []string{"gsb", "government savings", "ออมสิน"}},
			{Code: "TTB", Name: "TMBThanachart Bank", Keywords: []string{"ttb", "tmb", "thanachart", "tmbthanachart", "ทหารไทย", "ธนชาต"}},
			{Code: "BAY", Name: "Bank of Ayudhya (Krungsri)", Keywords: []string{"krungsri", "bay", "กรุงศรี", "ayudhya"}},
			{Code: "TMN", Name: "TrueMoney Wallet", Keywords: []string{"truemoney", "true money", "ทรูมันนี่"}, Wallet: true},
			{Code: "SPAY", Name: "ShopeePay", Keywords: []string{"shopeepay", "shopee pay", "ช้อปปี้เพย์"}, Wallet: true},
			{Code: "LINEPAY", Name: "Rabbit LINE Pay", Keywords: []string{"rabbit line pay", "line pay", "แรบบิท ไลน์ เพย์"}, Wallet: true},
		},
		NamePrefixes:     []string{"นาย", "นาง", "น.ส.", "ด.ช.", "ด.ญ.", "mr", "mrs", "miss", "ms"},
		NameMarkers:      []string{"ชื่อบัญชี", "account name"},
		BusinessKeywords: []string{"co.", "ltd", "store", "shop", "limited", "company", "หจก", "บจก"},
		SlipKeywords: []string{
			"transfer successful", "successful transfer", "โอนเงินสำเร็จ", "รายการสำเร็จ",
			"e-slip", "ref no", "ref. no", "เลขที่รายการ", "รหัสอ้างอิง",
		},
	}
}

// LoadTable reads a yaml keyword table. Sections missing from the file keep their defaults.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword table: %w", err)
	}

	var file Table
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse keyword table %s: %w", path, err)
	}

	table := DefaultTable()
	if len(file.Banks) > 0 {
		table.Banks = file.Banks
	}
	if len(file.NamePrefixes) > 0 {
		table.NamePrefixes = file.NamePrefixes
	}
	if len(file.NameMarkers) > 0 {
		table.NameMarkers = file.NameMarkers
	}
	if len(file.BusinessKeywords) > 0 {
		table.BusinessKeywords = file.BusinessKeywords
	}
	if len(file.SlipKeywords) > 0 {
		table.SlipKeywords = file.SlipKeywords
	}

	if err := table.validate(); err != nil {
		return nil, fmt.Errorf("invalid keyword table %s: %w", path, err)
	}
	return table, nil
}

func (t *Table) validate() error {
	seen := make(map[string]bool)
	for i, b := range t.Banks {
		if b.Code == "" {
			return fmt.Errorf("bank %d has no code", i)
		}
		if seen[b.Code] {
			return fmt.Errorf("duplicate bank code %s", b.Code)
		}
		seen[b.Code] = true
		if len(b.Keywords) == 0 {
			return fmt.Errorf("bank %s has no keywords", b.Code)
		}
		for _, k := range b.Keywords {
			if k == "" {
				return fmt.Errorf("bank %s has an empty keyword", b.Code)
			}
		}
	}
	return nil
}
