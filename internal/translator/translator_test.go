package translator_test

import (
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/lawclinic/helpdesk-bot/internal/translator"
)

func catalogKeys(file string) map[string]bool {
	data, err := os.ReadFile(file)
	Expect(err).NotTo(HaveOccurred())
	var catalog map[string]string
	Expect(yaml.Unmarshal(data, &catalog)).To(Succeed())

	keys := make(map[string]bool, len(catalog))
	for k := range catalog {
		keys[k] = true
	}
	return keys
}

var _ = Describe("Translator", func() {
	var tr *translator.Translator

	BeforeEach(func() {
		var err error
		tr, err = translator.New(translator.Config{DefaultLocale: "ru"})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should load every embedded catalog", func() {
		Expect(tr.Locales()).To(Equal([]string{"en", "ru"}))
		Expect(tr.DefaultLocale()).To(Equal("ru"))
	})

	It("should refuse a default locale without a catalog", func() {
		_, err := translator.New(translator.Config{DefaultLocale: "de"})
		Expect(err).To(HaveOccurred())
	})

	It("should fill template arguments", func() {
		text := tr.T("en", "request_declined_user", translator.Args{"Category": "Housing", "Reason": "Out of scope"})

		Expect(text).To(ContainSubstring(`"Housing"`))
		Expect(text).To(ContainSubstring("Out of scope"))
	})

	It("should fall back to the default locale and then to the key", func() {
		Expect(tr.T("de", "btn_faq", nil)).To(Equal(tr.T("ru", "btn_faq", nil)))
		Expect(tr.T("en", "no_such_key", nil)).To(Equal("no_such_key"))
	})

	It("should define the same keys in every catalog", func() {
		Expect(catalogKeys("locales/ru.yaml")).To(Equal(catalogKeys("locales/en.yaml")))
	})

	It("should render distinct menu labels per locale", func() {
		for _, locale := range tr.Locales() {
			seen := map[string]string{}
			for key := range catalogKeys("locales/en.yaml") {
				if !strings.HasPrefix(key, "btn_") {
					continue
				}
				label := tr.T(locale, key, nil)
				Expect(seen).NotTo(HaveKey(label), "%s duplicates %s in %s", key, seen[label], locale)
				seen[label] = key
			}
		}
	})

	DescribeTable("Resolve",
		func(candidates []string, want string) {
			Expect(tr.Resolve(candidates...)).To(Equal(want))
		},
		Entry("stored choice wins", []string{"en", "ru"}, "en"),
		Entry("client region is ignored", []string{"", "en-US"}, "en"),
		Entry("unsupported falls back", []string{"de"}, "ru"),
		Entry("nothing known", []string{"", ""}, "ru"),
	)

	It("should truncate by runes", func() {
		Expect(translator.Truncate("Привет, мир", 7)).To(Equal("Привет…"))
		Expect(translator.Truncate("short", 10)).To(Equal("short"))
	})
})
