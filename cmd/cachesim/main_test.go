package main

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/dram"
	"github.com/sarchlab/cachesim/hierarchy"
)

func TestCachesim(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cachesim Suite")
}

var _ = Describe("loadTrace", func() {
	It("parses a well-formed trace file", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "trace.txt")
		contents := "# comment\n0x00001000 D\n0x00002000 I\n\n0x00001020 D\n"
		Expect(os.WriteFile(path, []byte(contents), 0644)).To(Succeed())

		accesses, err := loadTrace(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(accesses).To(HaveLen(3))
		Expect(accesses[0]).To(Equal(access{address: 0x1000, which: hierarchy.D}))
		Expect(accesses[1]).To(Equal(access{address: 0x2000, which: hierarchy.I}))
	})

	It("rejects a malformed line", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "bad.txt")
		Expect(os.WriteFile(path, []byte("not-a-valid-line\n"), 0644)).To(Succeed())

		_, err := loadTrace(path)
		Expect(err).To(HaveOccurred())
	})

	It("falls back to a synthetic trace when no path is given", func() {
		accesses, err := loadTrace("")
		Expect(err).NotTo(HaveOccurred())
		Expect(len(accesses)).To(BeNumerically(">", 0))
	})
})

var _ = Describe("run", func() {
	It("drives every access to completion and reports a positive cycle count", func() {
		h, err := hierarchy.New(cache.PolicyLRU, dram.DefaultTiming())
		Expect(err).NotTo(HaveOccurred())

		accesses := []access{
			{address: 0x1000, which: hierarchy.D},
			{address: 0x1000, which: hierarchy.D},
		}

		cycle, err := run(h, accesses, 10_000)
		Expect(err).NotTo(HaveOccurred())
		Expect(cycle).To(BeNumerically(">", 0))
	})

	It("fails once the cycle budget is exhausted", func() {
		h, err := hierarchy.New(cache.PolicyLRU, dram.DefaultTiming())
		Expect(err).NotTo(HaveOccurred())

		accesses := []access{{address: 0x1000, which: hierarchy.D}}

		_, err = run(h, accesses, 1)
		Expect(err).To(HaveOccurred())
	})
})
